/*
Package bandit assigns A/B/n variants to sessions and keeps them sticky.

A site carries one experiment: a set of named variants with relative weights.
For every session the engine resolves a variant, in priority order, from an
explicit request, from the session's previous assignment, or from a weighted
draw. The result is persisted so the session sees the same variant next time,
and exactly one "exposures" event is sent to the metrics sink.

# Concept

A Bandit holds what is shared by a process: the site provider, the session
manager and the metrics sink. Each consumer mounts an Instance, which loads
its site through the PRELOAD, WAIT, READY states. A site that cannot be
fetched in time is replaced by a fallback site, so an Instance always becomes
ready with a valid variant.

# Usage

	provider := memory.NewProvider(domain.Site{
		Name: "home",
		Experiment: domain.Experiment{
			ID: "hero",
			Variants: []domain.Variant{
				{Name: "A", Weight: domain.Weight(0.5)},
				{Name: "B", Weight: domain.Weight(0.5)},
			},
		},
		DefaultVariant: "A",
	})

	b, err := bandit.New(bandit.WithProvider(provider))
	if err != nil {
		log.Fatal(err)
	}
	defer b.Close(ctx)

	inst := b.Mount("session-123", bandit.WithSite("home"))
	inst.Start(ctx)
	snap, _ := inst.Wait(ctx)
	fmt.Println(snap.Variant.Name)

	// later, when the visitor converts
	inst.Convert()
	inst.Close(ctx)
*/
package bandit
