package scoring

import (
	_ "embed"
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/joseph-ayodele/packet-underwriter/internal/common"
)

// Sub-score names, in scoring order.
const (
	DiscountRatio       = "discount_ratio"
	PaymentStability    = "payment_stability"
	DocumentConsistency = "document_consistency"
	AdverseMedia        = "adverse_media"
	IdentityVerified    = "identity_verified"
)

var subScoreOrder = []string{DiscountRatio, PaymentStability, DocumentConsistency, AdverseMedia, IdentityVerified}

//go:embed default_bands.yaml
var defaultBandsYAML []byte

// Band is a discrete bucket. Min and Max are inclusive; nil means unbounded.
type Band struct {
	Label    string   `yaml:"label"`
	Min      *float64 `yaml:"min,omitempty"`
	Max      *float64 `yaml:"max,omitempty"`
	Fraction float64  `yaml:"fraction"`
}

func (b Band) contains(v float64) bool {
	if b.Min != nil && v < *b.Min {
		return false
	}
	if b.Max != nil && v > *b.Max {
		return false
	}
	return true
}

type SubScoreBands struct {
	Name      string  `yaml:"name"`
	MaxPoints float64 `yaml:"max_points"`
	Bands     []Band  `yaml:"bands"`
}

// Match returns the first band containing v.
func (s SubScoreBands) Match(v float64) (Band, bool) {
	for _, b := range s.Bands {
		if b.contains(v) {
			return b, true
		}
	}
	return Band{}, false
}

type StabilityConfig struct {
	// MinAmount excludes counterparties whose total inflow is smaller.
	MinAmount  float64 `yaml:"min_amount"`
	MinPeriods int     `yaml:"min_periods"`
}

// Bands is the full scoring configuration.
type Bands struct {
	ApproveAt        float64         `yaml:"approve_at"`
	ReviewAt         float64         `yaml:"review_at"`
	PaymentStability StabilityConfig `yaml:"payment_stability"`
	IdentityField    string          `yaml:"identity_field"`
	SubScores        []SubScoreBands `yaml:"sub_scores"`
}

// Lookup returns the bands of one sub-score.
func (b Bands) Lookup(name string) (SubScoreBands, bool) {
	for _, s := range b.SubScores {
		if s.Name == name {
			return s, true
		}
	}
	return SubScoreBands{}, false
}

// MaxScore is the sum of every sub-score's max points.
func (b Bands) MaxScore() float64 {
	total := 0.0
	for _, s := range b.SubScores {
		total += s.MaxPoints
	}
	return total
}

// Validate checks that every sub-score is configured once with positive points.
func (b Bands) Validate() error {
	if b.ReviewAt > b.ApproveAt {
		return common.ConfigError(fmt.Sprintf("review_at %.2f above approve_at %.2f", b.ReviewAt, b.ApproveAt))
	}
	seen := map[string]bool{}
	for _, s := range b.SubScores {
		if seen[s.Name] {
			return common.ConfigError(fmt.Sprintf("sub-score %q configured twice", s.Name))
		}
		seen[s.Name] = true
		if s.MaxPoints <= 0 {
			return common.ConfigError(fmt.Sprintf("sub-score %q: max_points must be positive", s.Name))
		}
		for _, band := range s.Bands {
			if band.Fraction < 0 || band.Fraction > 1 {
				return common.ConfigError(fmt.Sprintf("sub-score %q band %q: fraction outside [0,1]", s.Name, band.Label))
			}
		}
	}
	for _, name := range subScoreOrder {
		if !seen[name] {
			return common.ConfigError(fmt.Sprintf("sub-score %q not configured", name))
		}
	}
	return nil
}

// ParseBands decodes and validates a YAML band configuration.
func ParseBands(data []byte) (Bands, error) {
	var b Bands
	if err := yaml.Unmarshal(data, &b); err != nil {
		return Bands{}, common.NewAppError(common.CodeConfig, "parse scoring bands", fmt.Errorf("%w: %v", common.ErrConfiguration, err))
	}
	if b.PaymentStability.MinPeriods < 2 {
		b.PaymentStability.MinPeriods = 2
	}
	if b.IdentityField == "" {
		b.IdentityField = "identity_name"
	}
	if err := b.Validate(); err != nil {
		return Bands{}, err
	}
	return b, nil
}

// LoadBands reads bands from path, or the built-in defaults when path is empty.
func LoadBands(path string) (Bands, error) {
	if path == "" {
		return DefaultBands(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Bands{}, common.NewAppError(common.CodeConfig, "read scoring bands "+path, fmt.Errorf("%w: %v", common.ErrConfiguration, err))
	}
	return ParseBands(data)
}

// DefaultBands returns the built-in configuration.
func DefaultBands() Bands {
	b, err := ParseBands(defaultBandsYAML)
	if err != nil {
		panic(err)
	}
	return b
}
