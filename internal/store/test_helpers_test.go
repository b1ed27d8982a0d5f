package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/apiary/internal/classify"
	"github.com/roach88/apiary/internal/ir"
	"github.com/roach88/apiary/internal/oracle"
	"github.com/roach88/apiary/internal/pipeline"
	"github.com/roach88/apiary/internal/registry"
	"github.com/roach88/apiary/internal/telemetry"
	"github.com/roach88/apiary/internal/testutil"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestResult runs the pipeline over two players: alice deploys an
// extended Stapler program and a missing artifact, bob plays without
// programs.
func createTestResult(t *testing.T) *pipeline.Result {
	t.Helper()
	stock := testutil.DefaultProgram("Stapler")
	src := &registry.MemorySource{
		Artifacts: map[string]*ir.Graph{
			"ext": testutil.From(stock).State("extra", "Состояние").Build(),
		},
		Baselines: map[string]map[string]*ir.Graph{"1.6": {"Stapler": stock}},
	}
	reg := registry.New(src, src, registry.DefaultVersionRules)
	p := pipeline.New(reg, classify.New(oracle.NewStructural()), pipeline.Options{Workers: 2}, nil, nil)

	alice := testutil.NewStream("alice")
	bob := testutil.NewStream("bob")
	res, err := p.Run(context.Background(), map[string][]telemetry.Record{
		"alice": {
			alice.Programmed(telemetry.Level1, 1, "Stapler", "ext", 5),
			alice.Programmed(telemetry.Level1, 1, "Stapler", "gone", 1),
			alice.Final(telemetry.Level1, 1, 1),
		},
		"bob": {
			bob.Unit(telemetry.Level2, 2, "Smoker"),
			bob.Final(telemetry.Level2, 2, 1),
			bob.Unit(telemetry.Level3, 1, "Smoker"),
		},
	})
	if err != nil {
		t.Fatalf("pipeline run failed: %v", err)
	}
	return res
}
