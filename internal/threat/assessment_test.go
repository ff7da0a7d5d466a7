package threat

import "testing"

func TestBands(t *testing.T) {
	tests := []struct {
		score int
		cat   Category
		level Level
	}{
		{0, CategoryLegitimate, LevelLow},
		{20, CategoryLegitimate, LevelLow},
		{21, CategorySuspicious, LevelMedium},
		{45, CategorySuspicious, LevelMedium},
		{46, CategorySuspicious, LevelHigh},
		{50, CategorySuspicious, LevelHigh},
		{51, CategoryMalwareHosting, LevelHigh},
		{70, CategoryMalwareHosting, LevelHigh},
		{71, CategoryMalwareHosting, LevelCritical},
		{75, CategoryMalwareHosting, LevelCritical},
		{76, CategoryPhishing, LevelCritical},
		{100, CategoryPhishing, LevelCritical},
	}
	for _, tc := range tests {
		if got := categoryFor(tc.score); got != tc.cat {
			t.Errorf("categoryFor(%d) = %q, want %q", tc.score, got, tc.cat)
		}
		if got := levelFor(tc.score); got != tc.level {
			t.Errorf("levelFor(%d) = %q, want %q", tc.score, got, tc.level)
		}
	}
}

func TestConfidence(t *testing.T) {
	age := 400
	present := false
	tests := []struct {
		name string
		f    Features
		want float64
	}{
		{"nothing", Features{}, 0},
		{"three of seven", Features{DomainAgeDays: &age, WhoisAvailable: true, SSLPresent: &present}, 0.43},
		{"dns only", Features{DNSACount: 1, DNSTXTCount: 1, TotalIPs: 1}, 0.43},
	}
	for _, tc := range tests {
		if got := confidence(tc.f); got != tc.want {
			t.Errorf("%s: confidence = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestClassify_OverridePriority(t *testing.T) {
	young := 10
	// Young and unencrypted wins over an expired status and a proxy.
	f := Features{DomainAgeDays: &young, DomainStatus: "expired", ProxyCount: 2}
	if got := classify(90, f); got != CategoryPhishing {
		t.Errorf("classify = %q, want phishing", got)
	}

	yes := true
	f.SSLPresent = &yes
	if got := classify(90, f); got != CategorySuspicious {
		t.Errorf("classify = %q, want suspicious", got)
	}

	f.DomainStatus = "active"
	if got := classify(90, f); got != CategoryMalwareHosting {
		t.Errorf("classify = %q, want malware_hosting", got)
	}

	f.ProxyCount = 0
	if got := classify(90, f); got != CategoryPhishing {
		t.Errorf("classify = %q, want score-banded phishing", got)
	}
}
