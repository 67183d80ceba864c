// Package loam serves site definitions from a directory of documents
// through the Loam library. YAML, JSON and Markdown frontmatter documents
// are all read as sites.
package loam
