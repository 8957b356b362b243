package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/conducthq/conduct"
	"github.com/conducthq/conduct/engine"
	"github.com/conducthq/conduct/id"
	"github.com/conducthq/conduct/job"
)

type echoParams struct {
	Message string `json:"message"`
}

type countryRefreshParams struct {
	Country string `json:"country"`
}

// registerDemoCommands registers the built-in commands: echo exercises
// the log sink and cancellation token word by word, country_refresh is a
// heavy command producing artefact and packet references.
func registerDemoCommands(eng *engine.Engine) {
	engine.Register(eng, job.NewDefinition("echo", job.ClassLight, echoHandler))

	engine.Register(eng, job.NewDefinition("country_refresh", job.ClassHeavy, countryRefreshHandler).
		WithValidator(func(p countryRefreshParams) error {
			if len(p.Country) != 2 {
				return fmt.Errorf("country must be a two-letter ISO code, got %q", p.Country)
			}
			return nil
		}))
}

func echoHandler(ctx context.Context, rt job.Runtime, p echoParams) (*job.Result, error) {
	message := p.Message
	if message == "" {
		message = "Hello from Conduct!"
	}

	for i, word := range strings.Fields(message) {
		if rt.Cancelled() {
			return nil, conduct.ErrCancelled
		}
		rt.Logf("[%d] %s", i+1, word)

		select {
		case <-time.After(300 * time.Millisecond):
		case <-rt.Done():
			return nil, conduct.ErrCancelled
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	rt.Log("Done.")
	return &job.Result{}, nil
}

func countryRefreshHandler(ctx context.Context, rt job.Runtime, p countryRefreshParams) (*job.Result, error) {
	country := strings.ToUpper(p.Country)
	stages := []string{
		"fetching market data",
		"refreshing company universe",
		"scoring industries",
		"assembling decision packet",
	}

	for _, stage := range stages {
		rt.Logf("%s: %s", country, stage)

		select {
		case <-time.After(time.Second):
		case <-rt.Done():
			rt.Logf("%s: aborted during %q", country, stage)
			return nil, conduct.ErrCancelled
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	artefact := id.NewArtefactID()
	packet := id.NewPacketID()
	rt.Logf("%s: refresh complete, packet %s", country, packet)

	return &job.Result{
		ArtefactIDs: []string{artefact.String()},
		PacketID:    packet,
	}, nil
}
