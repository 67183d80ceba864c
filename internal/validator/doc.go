// Package validator checks site definitions before they are served.
package validator
