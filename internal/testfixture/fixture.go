// Package testfixture builds deterministic receipt corpora and small trained
// bundles for tests across packages.
package testfixture

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/gyaneshwarpardhi/receiptrisk/internal/bundle"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/classifier"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/receipt"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/train"
)

var (
	legitVendors   = []string{"Starbucks Coffee", "Walmart", "Target", "Whole Foods Market", "Shell", "Office Depot", "Chipotle"}
	legitPayments  = []string{"Credit Card", "Debit Card", "Corporate Card", "Apple Pay"}
	fraudPayments  = []string{"CASH ONLY", "", "cash"}
	corpusStart    = time.Date(2024, time.January, 1, 8, 0, 0, 0, time.UTC)
	corpusEnd      = time.Date(2024, time.December, 20, 18, 0, 0, 0, time.UTC)
	fixtureTrained = time.Date(2025, time.January, 28, 12, 0, 0, 0, time.UTC)
)

// Corpus returns legit plus fraud labelled receipts drawn from a seeded faker.
// Fraud rows have odd vendors, large amounts, outsized tips and cash payment.
func Corpus(legit, fraud int, seed int64) []receipt.LabeledRecord {
	f := gofakeit.New(seed)
	out := make([]receipt.LabeledRecord, 0, legit+fraud)
	for i := 0; i < legit; i++ {
		vendor := f.RandomString(legitVendors)
		if f.Bool() {
			vendor = f.Company()
		}
		amount := f.Float64Range(5, 250)
		out = append(out, receipt.LabeledRecord{Record: receipt.Record{
			Vendor:        vendor,
			TotalAmount:   round2(amount),
			Date:          f.DateRange(corpusStart, corpusEnd).Format("2006-01-02 15:04:05"),
			ItemCount:     f.IntRange(1, 8),
			Tip:           round2(amount * f.Float64Range(0, 0.2)),
			PaymentMethod: f.RandomString(legitPayments),
		}})
	}
	for i := 0; i < fraud; i++ {
		amount := f.Float64Range(600, 2500)
		out = append(out, receipt.LabeledRecord{
			Record: receipt.Record{
				Vendor:        f.Numerify("TESTVENDOR###!!!"),
				TotalAmount:   round2(amount),
				Date:          f.DateRange(corpusStart, corpusEnd).Format("2006-01-02 15:04:05"),
				ItemCount:     f.IntRange(1, 2),
				Tip:           round2(amount * f.Float64Range(0.3, 0.6)),
				PaymentMethod: f.RandomString(fraudPayments),
			},
			IsFraud: true,
		})
	}
	f.ShuffleAnySlice(out)
	return out
}

// Registry returns both classifier families with reduced ensemble sizes so
// tests train in well under a second.
func Registry() *classifier.Registry {
	fp := classifier.DefaultForestParams()
	fp.Trees = 20
	bp := classifier.DefaultBoostingParams()
	bp.Trees = 20
	bp.MaxDepth = 3
	reg := classifier.NewRegistry()
	reg.Register(classifier.NewForestFamily(fp))
	reg.Register(classifier.NewBoostingFamily(bp))
	return reg
}

// Bundle trains a small bundle on the default corpus.
func Bundle() (*bundle.Bundle, error) {
	res, err := train.New(train.DefaultConfig(), Registry(),
		train.WithClock(func() time.Time { return fixtureTrained }),
	).Train(context.Background(), Corpus(160, 40, 42))
	if err != nil {
		return nil, fmt.Errorf("testfixture: %w", err)
	}
	return res.Bundle, nil
}

// Published trains a bundle and publishes it to a store rooted at dir.
func Published(dir, version string) (*bundle.Store, *bundle.Bundle, error) {
	b, err := Bundle()
	if err != nil {
		return nil, nil, err
	}
	b.Metadata.Version = version
	store := bundle.NewStore(dir, Registry())
	if _, err := store.Publish(b); err != nil {
		return nil, nil, err
	}
	return store, b, nil
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
