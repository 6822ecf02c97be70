package types

import "testing"

func TestParseAdsrTarget(t *testing.T) {
	cases := []struct {
		legacy int
		want   AdsrTarget
	}{
		{1, AdsrCC},
		{2, AdsrPitchBend},
		{3, AdsrSmartScaleBend},
		{0, AdsrCC},
		{99, AdsrCC},
	}
	for _, c := range cases {
		if got := ParseAdsrTarget(c.legacy); got != c.want {
			t.Errorf("ParseAdsrTarget(%d) = %v, want %v", c.legacy, got, c.want)
		}
	}
}

func TestLayerIDValid(t *testing.T) {
	if !BaseLayer.Valid() {
		t.Errorf("BaseLayer should be valid")
	}
	if !MaxLayer.Valid() {
		t.Errorf("MaxLayer should be valid")
	}
	if LayerID(9).Valid() {
		t.Errorf("layer 9 should not be valid")
	}
	if LayerID(-1).Valid() {
		t.Errorf("layer -1 should not be valid")
	}
}

func TestColorDimmed(t *testing.T) {
	c := Color{1, 0.5, 0.25, 1.0}
	d := c.Dimmed()
	if d.A != 0.3 {
		t.Errorf("Dimmed alpha = %v, want 0.3", d.A)
	}
	if d.R != c.R || d.G != c.G || d.B != c.B {
		t.Errorf("Dimmed should not change RGB")
	}
}
