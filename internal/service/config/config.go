package config

import (
	"time"

	"github.com/avello/storefront/internal/service/supplierclient"
)

type Config struct {
	UnderCutters   supplierclient.Config
	DodgyDealers   supplierclient.Config
	MirrorInterval time.Duration
}
