package abtest

import (
	"fmt"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

// mapSource 测试用配置源
type mapSource map[string]string

func (m mapSource) GetString(key string) string { return m[key] }

func TestIsEnabled(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"TRUE", true},
		{"1", true},
		{" true ", true},
		{"yes", false},
		{"0", false},
		{"false", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.value), func(t *testing.T) {
			r := NewRouter(mapSource{EnvEnabled: tt.value})
			assert.Equal(t, tt.want, r.IsEnabled())
		})
	}
}

func TestSplitClampsAndDefaults(t *testing.T) {
	tests := []struct {
		value string
		want  int
	}{
		{"", 10},
		{"abc", 10},
		{"25", 25},
		{"0", 0},
		{"100", 100},
		{"-5", 0},
		{"250", 100},
		{"12.5", 10},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.value), func(t *testing.T) {
			r := NewRouter(mapSource{EnvSplit: tt.value})
			assert.Equal(t, tt.want, r.Split())
		})
	}
}

func TestNilSourceIsDisabled(t *testing.T) {
	r := NewRouter(nil)
	assert.False(t, r.IsEnabled())
	assert.Equal(t, DefaultSplit, r.Split())
	assert.Equal(t, VariantA, r.ChooseVariant("anything"))
}

func TestChooseVariantIsSticky(t *testing.T) {
	r := NewRouter(mapSource{EnvEnabled: "true", EnvSplit: "50"})
	for i := 0; i < 200; i++ {
		seed := fmt.Sprintf("user-%d", i)
		first := r.ChooseVariant(seed)
		for j := 0; j < 3; j++ {
			assert.Equal(t, first, r.ChooseVariant(seed))
		}
	}
}

func TestChooseVariantBoundaries(t *testing.T) {
	for i := 0; i < 500; i++ {
		seed := fmt.Sprintf("photo-%d", i)
		assert.Equal(t, VariantA, ChooseVariant(seed, ABTestConfig{Enabled: true, Split: 0}))
		assert.Equal(t, VariantB, ChooseVariant(seed, ABTestConfig{Enabled: true, Split: 100}))
		assert.Equal(t, VariantA, ChooseVariant(seed, ABTestConfig{Enabled: false, Split: 100}))
	}
}

func TestChooseVariantDistribution(t *testing.T) {
	cfg := ABTestConfig{Enabled: true, Split: 10}
	const n = 10000

	b := 0
	for i := 0; i < n; i++ {
		if ChooseVariant(fmt.Sprintf("seed-%d", i), cfg) == VariantB {
			b++
		}
	}

	frac := float64(b) / n
	assert.GreaterOrEqual(t, frac, 0.07)
	assert.LessOrEqual(t, frac, 0.13)
}

func TestBucketMatchesChooseVariant(t *testing.T) {
	cfg := ABTestConfig{Enabled: true, Split: 30}
	for i := 0; i < 100; i++ {
		seed := fmt.Sprintf("s%d", i)
		b := Bucket(seed)
		assert.GreaterOrEqual(t, b, 0)
		assert.Less(t, b, 100)
		assert.Equal(t, b < 30, ChooseVariant(seed, cfg) == VariantB)
	}
}

func TestRouterReadsViperLive(t *testing.T) {
	v := viper.New()
	v.AutomaticEnv()
	t.Setenv(EnvEnabled, "1")
	t.Setenv(EnvSplit, "100")

	r := NewRouter(v)
	assert.Equal(t, VariantB, r.ChooseVariant("x"))

	t.Setenv(EnvEnabled, "false")
	assert.Equal(t, VariantA, r.ChooseVariant("x"))
}
