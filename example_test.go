package pawprint_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/hupe1980/pawprint"
	"github.com/hupe1980/pawprint/dataset"
	"github.com/hupe1980/pawprint/distance"
	"github.com/hupe1980/pawprint/extract"
	"github.com/hupe1980/pawprint/persistence"
	"github.com/hupe1980/pawprint/testutil"
)

// Example demonstrates building a snapshot and matching a photo against it.
func Example() {
	ctx := context.Background()

	dir, err := os.MkdirTemp("", "pawprint-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	model := extract.NewModelHandle(&testutil.QuadrantModel{})
	defer model.Close()
	ex := extract.NewExtractor(model)

	target := persistence.NewLocalTarget(filepath.Join(dir, "dogs.paw"))
	b, err := pawprint.NewBuilder(ex, target)
	if err != nil {
		log.Fatal(err)
	}

	res, err := b.Build(ctx, dataset.Slice(
		dataset.Bytes("rex", "rex/1.png", testutil.PNG(0)),
		dataset.Bytes("bella", "bella/1.png", testutil.PNG(2)),
		dataset.Bytes("bella", "bella/2.jpg", testutil.CorruptImage()),
	))
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("indexed=%d skipped=%d\n", res.Count, res.Skipped)

	eng, err := pawprint.Open(ctx, ex, target)
	if err != nil {
		log.Fatal(err)
	}

	m, err := eng.MatchByImage(ctx, testutil.PNG(2))
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(m.Found(), m.IdentityID)

	// Output:
	// indexed=2 skipped=1
	// true bella
}

// ExampleEngine_MatchVector demonstrates the similarity threshold.
func ExampleEngine_MatchVector() {
	ctx := context.Background()

	eng, err := pawprint.NewEngine(nil, pawprint.WithPolicy(pawprint.Policy{MinSimilarity: 0.9}))
	if err != nil {
		log.Fatal(err)
	}
	if err := eng.Swap(vectorSnapshot(distance.MetricDot, [][]float32{{1, 0}, {0, 1}}, []string{"rex", "bella"})); err != nil {
		log.Fatal(err)
	}

	m, _ := eng.MatchVector(ctx, []float32{0.1, 1})
	fmt.Println(m.IdentityID)

	m, _ = eng.MatchVector(ctx, []float32{1, 1})
	fmt.Println(m.Found())

	// Output:
	// bella
	// false
}
