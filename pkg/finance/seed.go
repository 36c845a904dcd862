// Copyright 2026 © The Spendlens Authors
// SPDX-License-Identifier: Apache-2.0

package finance

import (
	"fmt"
	"math/rand"
	"time"
)

var sampleCategories = []struct {
	name         string
	counterparty string
	min, max     float64
}{
	{"dining", "Corner Bistro", 12, 80},
	{"groceries", "FreshMart", 20, 150},
	{"transport", "Metro Card", 2, 40},
	{"shopping", "Online Store", 15, 300},
	{"utilities", "City Power", 40, 120},
	{"entertainment", "Cinema", 8, 60},
}

var paymentMethods = []string{"card", "cash", "transfer"}

// SampleTransactions generates n deterministic pseudo-random expense records
// for userID spread over [start, end], plus one salary income record.
func SampleTransactions(userID string, start, end time.Time, n int, seed int64) []Transaction {
	r := rand.New(rand.NewSource(seed))
	span := end.Sub(start)
	if span <= 0 {
		span = 24 * time.Hour
	}

	out := make([]Transaction, 0, n+1)
	out = append(out, Transaction{
		ID:            fmt.Sprintf("%s-income-0", userID),
		UserID:        userID,
		Amount:        3000,
		Category:      "salary",
		Timestamp:     start,
		Counterparty:  "Employer",
		Kind:          KindIncome,
		Description:   "monthly salary",
		PaymentMethod: "transfer",
	})
	for i := 0; i < n; i++ {
		c := sampleCategories[r.Intn(len(sampleCategories))]
		amount := c.min + r.Float64()*(c.max-c.min)
		out = append(out, Transaction{
			ID:            fmt.Sprintf("%s-%04d", userID, i),
			UserID:        userID,
			Amount:        float64(int(amount*100)) / 100,
			Category:      c.name,
			Timestamp:     start.Add(time.Duration(r.Int63n(int64(span)))),
			Counterparty:  c.counterparty,
			Kind:          KindExpense,
			Description:   c.name + " purchase",
			PaymentMethod: paymentMethods[r.Intn(len(paymentMethods))],
		})
	}
	SortByTime(out)
	return out
}
