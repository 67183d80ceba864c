package bandit_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/bandit"
	"github.com/aretw0/bandit/pkg/adapters/memory"
	"github.com/aretw0/bandit/pkg/domain"
)

// ExampleBandit_Mount resolves a variant for one session against an
// in-memory site definition.
func ExampleBandit_Mount() {
	provider := memory.NewProvider(domain.Site{
		Name: "checkout",
		Experiment: domain.Experiment{
			ID: "button-color",
			Variants: []domain.Variant{
				{Name: "green", Weight: domain.Weight(1)},
				{Name: "red", Weight: domain.Weight(0)},
			},
		},
		DefaultVariant: "green",
	})

	b, err := bandit.New(bandit.WithProvider(provider))
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	inst := b.Mount("visitor-42", bandit.WithSite("checkout"))
	inst.Start(ctx)

	snap, err := inst.Wait(ctx)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(snap.Experiment().ID, snap.Variant.Name)

	// Output: button-color green
}
