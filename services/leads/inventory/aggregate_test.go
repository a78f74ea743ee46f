// Copyright (C) 2025 Leadscope Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package inventory

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/sn71/leadscope/services/leads/datatypes"
)

func acceptedState(hotkey, date string) datatypes.ResolvedState {
	return datatypes.ResolvedState{
		Hotkey:        hotkey,
		Decision:      datatypes.DecisionAccepted,
		FirstSeenDate: date,
	}
}

func TestBuildDailyInventory(t *testing.T) {
	t.Run("buckets and prefix-sums", func(t *testing.T) {
		// Scenario: 3 accepted on 01-01 and 2 on 01-02.
		states := map[string]datatypes.ResolvedState{}
		for i := 0; i < 3; i++ {
			hk := fmt.Sprintf("a%d", i)
			states[hk] = acceptedState(hk, "2024-01-01")
		}
		for i := 0; i < 2; i++ {
			hk := fmt.Sprintf("b%d", i)
			states[hk] = acceptedState(hk, "2024-01-02")
		}

		points, total := BuildDailyInventory(states)
		want := []datatypes.DailyInventoryPoint{
			{Date: "2024-01-01", NewCount: 3, Cumulative: 3},
			{Date: "2024-01-02", NewCount: 2, Cumulative: 5},
		}
		if !reflect.DeepEqual(points, want) {
			t.Errorf("points = %+v, want %+v", points, want)
		}
		if total != 5 {
			t.Errorf("total = %d, want 5", total)
		}
	})

	t.Run("excludes rejected and pending", func(t *testing.T) {
		states := map[string]datatypes.ResolvedState{
			"a": acceptedState("a", "2024-01-01"),
			"b": {Hotkey: "b", Decision: datatypes.DecisionRejected, FirstSeenDate: "2024-01-01"},
			"c": {Hotkey: "c", Decision: datatypes.DecisionPending, FirstSeenDate: "2024-01-01"},
		}

		points, total := BuildDailyInventory(states)
		if total != 1 {
			t.Errorf("total = %d, want 1", total)
		}
		if len(points) != 1 || points[0].NewCount != 1 {
			t.Errorf("points = %+v, want single bucket of 1", points)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		points, total := BuildDailyInventory(nil)
		if total != 0 {
			t.Errorf("total = %d, want 0", total)
		}
		if points == nil || len(points) != 0 {
			t.Errorf("points = %v, want empty non-nil slice", points)
		}
	})

	t.Run("cumulative is monotone and ends at accepted count", func(t *testing.T) {
		states := map[string]datatypes.ResolvedState{}
		dates := []string{"2024-03-05", "2024-03-01", "2024-03-03", "2024-03-01"}
		for i, d := range dates {
			hk := fmt.Sprintf("h%d", i)
			states[hk] = acceptedState(hk, d)
		}

		points, total := BuildDailyInventory(states)
		prev := 0
		sum := 0
		for _, p := range points {
			if p.Cumulative < prev {
				t.Fatalf("cumulative decreased at %s", p.Date)
			}
			prev = p.Cumulative
			sum += p.NewCount
		}
		if total != len(states) {
			t.Errorf("total = %d, want %d", total, len(states))
		}
		if points[len(points)-1].Cumulative != sum {
			t.Error("final cumulative does not equal sum of new counts")
		}
	})
}
