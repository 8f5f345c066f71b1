// Package notify carries the ledger's host-delegated notifications.
package notify

import "github.com/rs/zerolog"

// Notifier receives ledger notifications after an operation commits.
type Notifier interface {
	CampaignCreated(campaignID, creator string)
	DonationMade(campaignID, donor string, amount int64)
	FundsWithdrawn(campaignID, creator string, amount int64)
}

// Log emits notifications through a zerolog logger.
type Log struct {
	logger zerolog.Logger
}

// NewLog creates a logging notifier.
func NewLog(logger zerolog.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) CampaignCreated(campaignID, creator string) {
	l.logger.Info().
		Str("campaign_id", campaignID).
		Str("creator", creator).
		Msg("campaign created")
}

func (l *Log) DonationMade(campaignID, donor string, amount int64) {
	l.logger.Info().
		Str("campaign_id", campaignID).
		Str("donor", donor).
		Int64("amount", amount).
		Msg("donation made")
}

func (l *Log) FundsWithdrawn(campaignID, creator string, amount int64) {
	l.logger.Info().
		Str("campaign_id", campaignID).
		Str("creator", creator).
		Int64("amount", amount).
		Msg("funds withdrawn")
}

// Noop discards all notifications.
type Noop struct{}

func (Noop) CampaignCreated(string, string)       {}
func (Noop) DonationMade(string, string, int64)   {}
func (Noop) FundsWithdrawn(string, string, int64) {}
