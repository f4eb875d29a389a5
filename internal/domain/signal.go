package domain

import (
	"time"

	"github.com/alanyoungcy/actus/internal/fixed"
)

// Signal bus channels.
const (
	ChannelAssetInitialized = "asset:initialized"
	ChannelAssetProgressed  = "asset:progressed"
	ChannelPerformance      = "asset:performance"

	// StreamAssetEvents is the durable stream mirroring the channels above.
	StreamAssetEvents = "asset:events"
)

// ProgressedAsset is published after every committed progression.
type ProgressedAsset struct {
	AssetID     AssetID             `json:"assetId"`
	Event       Event               `json:"event"`
	Payoff      fixed.Int           `json:"payoff"`
	Settled     bool                `json:"settled"`
	Performance ContractPerformance `json:"performance"`
	Previous    ContractPerformance `json:"previous"`
	StatusDate  time.Time           `json:"statusDate"`
	At          time.Time           `json:"at"`
}

// InitializedAsset is published when an asset is registered.
type InitializedAsset struct {
	AssetID      AssetID      `json:"assetId"`
	ContractType ContractType `json:"contractType"`
	Events       int          `json:"events"`
	At           time.Time    `json:"at"`
}
