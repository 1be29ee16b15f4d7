package pipeline

import (
	"testing"

	"bloomgraph/pkg/common"
)

func TestGroupUnitsByOriginLevel(t *testing.T) {
	units := []common.KnowledgeUnit{
		{UCID: "uc-1", OriginID: "o1", BloomLevel: common.BloomRemember},
		{UCID: "uc-2", OriginID: "o1", BloomLevel: common.BloomUnderstand},
		{UCID: "uc-3", OriginID: "o2", BloomLevel: common.BloomRemember},
		{UCID: "uc-4", OriginID: "o1", BloomLevel: "Invent"},
		{UCID: "", OriginID: "o1", BloomLevel: common.BloomRemember},
	}

	grouped := groupUnitsByOriginLevel(units)

	if len(grouped) != 2 {
		t.Fatalf("expected 2 origins, got %d", len(grouped))
	}
	if got := grouped["o1"][common.BloomRemember]; len(got) != 1 || got[0] != "uc-1" {
		t.Errorf("o1 Remember units: expected [uc-1], got %v", got)
	}
	if got := grouped["o2"][common.BloomRemember]; len(got) != 1 || got[0] != "uc-3" {
		t.Errorf("o2 Remember units: expected [uc-3], got %v", got)
	}
}

func TestBuildRequiresLinks(t *testing.T) {
	grouped := map[string]map[string][]string{
		"o1": {
			common.BloomRemember:   {"uc-r"},
			common.BloomUnderstand: {"uc-u"},
			common.BloomApply:      {"uc-a"},
		},
	}

	links := buildRequiresLinks(grouped)

	if len(links) != 2 {
		t.Fatalf("expected 2 links for 3 consecutive levels, got %d", len(links))
	}
	// The lower-level unit is the source: it is required by the next level.
	wantPairs := map[[2]string]bool{
		{"uc-r", "uc-u"}: false,
		{"uc-u", "uc-a"}: false,
	}
	for _, l := range links {
		if l.Type != common.RelTypeRequires || l.Weight != 1.0 {
			t.Errorf("unexpected link attributes: %+v", l)
		}
		key := [2]string{l.SourceUCID, l.TargetUCID}
		if _, ok := wantPairs[key]; !ok {
			t.Errorf("unexpected link %s -> %s", l.SourceUCID, l.TargetUCID)
			continue
		}
		wantPairs[key] = true
	}
	for pair, seen := range wantPairs {
		if !seen {
			t.Errorf("missing link %s -> %s", pair[0], pair[1])
		}
	}
}

func TestBuildRequiresLinksSkipsGaps(t *testing.T) {
	grouped := map[string]map[string][]string{
		"o1": {
			common.BloomRemember: {"uc-r"},
			common.BloomApply:    {"uc-a"},
		},
	}

	if links := buildRequiresLinks(grouped); len(links) != 0 {
		t.Errorf("non-consecutive levels must not be linked, got %v", links)
	}
}

func TestBuildExpandsLinks(t *testing.T) {
	desc := "alpha collaborates with beta"
	entities := []common.GraphEntity{
		{ID: "a", Title: "Alpha"},
		{ID: "b", Title: "Beta"},
	}
	graphRels := []common.GraphRelationship{
		{Source: "Alpha", Target: "Beta", Weight: 2.5, Description: &desc},
		{Source: "Alpha", Target: "Ghost"},
		{Source: "Alpha", Target: "Alpha"},
	}
	grouped := map[string]map[string][]string{
		"a": {
			common.BloomRemember: {"uc-ar"},
			common.BloomApply:    {"uc-aa"},
		},
		"b": {
			common.BloomRemember: {"uc-br"},
		},
	}

	links := buildExpandsLinks(graphRels, entities, grouped)

	if len(links) != 2 {
		t.Fatalf("expected one bidirectional pair at Remember, got %d links", len(links))
	}
	for _, l := range links {
		if l.Type != common.RelTypeExpands {
			t.Errorf("expected EXPANDS type, got %q", l.Type)
		}
		if l.Weight != 2.5 {
			t.Errorf("expected graph edge weight 2.5, got %v", l.Weight)
		}
		if l.GraphRelDesc == nil || *l.GraphRelDesc != desc {
			t.Errorf("expected edge description to be carried, got %v", l.GraphRelDesc)
		}
	}
	if links[0].SourceUCID != "uc-ar" || links[0].TargetUCID != "uc-br" {
		t.Errorf("unexpected forward link: %+v", links[0])
	}
	if links[1].SourceUCID != "uc-br" || links[1].TargetUCID != "uc-ar" {
		t.Errorf("unexpected reverse link: %+v", links[1])
	}
}

func TestBuildExpandsLinksDefaultsWeight(t *testing.T) {
	entities := []common.GraphEntity{{ID: "a", Title: "Alpha"}, {ID: "b", Title: "Beta"}}
	graphRels := []common.GraphRelationship{{Source: "Alpha", Target: "Beta"}}
	grouped := map[string]map[string][]string{
		"a": {common.BloomUnderstand: {"uc-a"}},
		"b": {common.BloomUnderstand: {"uc-b"}},
	}

	links := buildExpandsLinks(graphRels, entities, grouped)
	if len(links) != 2 {
		t.Fatalf("expected 2 links, got %d", len(links))
	}
	if links[0].Weight != 1.0 {
		t.Errorf("zero-weight edges should default to 1.0, got %v", links[0].Weight)
	}
}

func TestAppendAvoidingDuplicates(t *testing.T) {
	existing := []common.Relationship{
		{SourceUCID: "a", TargetUCID: "b", Type: common.RelTypeRequires},
	}
	incoming := []common.Relationship{
		{SourceUCID: "a", TargetUCID: "b", Type: common.RelTypeRequires},
		{SourceUCID: "a", TargetUCID: "b", Type: common.RelTypeExpands},
		{SourceUCID: "b", TargetUCID: "a", Type: common.RelTypeExpands},
		{SourceUCID: "b", TargetUCID: "a", Type: common.RelTypeExpands},
	}

	merged := appendAvoidingDuplicates(existing, incoming)
	if len(merged) != 3 {
		t.Errorf("expected 3 distinct relationships, got %d", len(merged))
	}
}
