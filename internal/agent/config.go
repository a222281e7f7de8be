// Package agent drives the attack loop: recon windows, channel sweeps,
// association and deauthentication, and per-epoch bookkeeping.
package agent

import "time"

// Config holds the personality settings of the attack loop. Durations are
// whole or fractional seconds so the YAML stays close to what operators
// already write.
type Config struct {
	Associate bool `mapstructure:"associate" yaml:"associate"`
	Deauth    bool `mapstructure:"deauth" yaml:"deauth"`

	Channels []int `mapstructure:"channels" yaml:"channels"`

	ReconTime               int     `mapstructure:"recon_time" yaml:"recon_time"`
	MaxInactiveScale        int     `mapstructure:"max_inactive_scale" yaml:"max_inactive_scale"`
	ReconInactiveMultiplier int     `mapstructure:"recon_inactive_multiplier" yaml:"recon_inactive_multiplier"`
	HopReconTime            int     `mapstructure:"hop_recon_time" yaml:"hop_recon_time"`
	MinReconTime            int     `mapstructure:"min_recon_time" yaml:"min_recon_time"`
	ThrottleA               float64 `mapstructure:"throttle_a" yaml:"throttle_a"`
	ThrottleD               float64 `mapstructure:"throttle_d" yaml:"throttle_d"`

	MaxInteractions   int `mapstructure:"max_interactions" yaml:"max_interactions"`
	MaxMissesForRecon int `mapstructure:"max_misses_for_recon" yaml:"max_misses_for_recon"`

	APTTL   int `mapstructure:"ap_ttl" yaml:"ap_ttl"`
	STATTL  int `mapstructure:"sta_ttl" yaml:"sta_ttl"`
	MinRSSI int `mapstructure:"min_rssi" yaml:"min_rssi"`

	BoredNumEpochs   int `mapstructure:"bored_num_epochs" yaml:"bored_num_epochs"`
	SadNumEpochs     int `mapstructure:"sad_num_epochs" yaml:"sad_num_epochs"`
	ExcitedNumEpochs int `mapstructure:"excited_num_epochs" yaml:"excited_num_epochs"`
	MaxBlindEpochs   int `mapstructure:"max_blind_epochs" yaml:"max_blind_epochs"`
}

// DefaultConfig returns the stock personality.
func DefaultConfig() Config {
	return Config{
		Associate:               true,
		Deauth:                  true,
		ReconTime:               30,
		MaxInactiveScale:        2,
		ReconInactiveMultiplier: 2,
		HopReconTime:            10,
		MinReconTime:            5,
		ThrottleA:               0.4,
		ThrottleD:               0.9,
		MaxInteractions:         3,
		MaxMissesForRecon:       10,
		APTTL:                   120,
		STATTL:                  300,
		MinRSSI:                 -200,
		BoredNumEpochs:          15,
		SadNumEpochs:            25,
		ExcitedNumEpochs:        10,
		MaxBlindEpochs:          50,
	}
}

func seconds(n float64) time.Duration {
	return time.Duration(n * float64(time.Second))
}
