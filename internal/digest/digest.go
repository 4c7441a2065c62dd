// Package digest posts a plain-text summary of the last day's KPIs to Slack
// on a cron schedule.
package digest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"opsdash/internal/analytics"
	"opsdash/internal/domain"
	"opsdash/internal/metrics"
	"opsdash/internal/storage"
)

const (
	windowDays   = 1
	buildTimeout = 30 * time.Second
)

// Summary is the digest content before formatting.
type Summary struct {
	At            time.Time
	Manufacturing analytics.ManufacturingView
	Testing       analytics.TestingView
	Field         analytics.FieldView
	Sales         analytics.SalesView
}

// Build derives the one-day views from the latest rows of every table.
func Build(ctx context.Context, store storage.Store, now time.Time, loc *time.Location, unitPrice float64) (Summary, error) {
	snap, err := storage.FetchSnapshot(ctx, store, domain.MaxListLimit)
	if err != nil {
		return Summary{}, fmt.Errorf("fetch digest data: %w", err)
	}
	f := analytics.Filter{Days: windowDays, Now: now, Location: loc}
	return Summary{
		At:            now.In(loc),
		Manufacturing: analytics.Manufacturing(snap.Manufacturing, f),
		Testing:       analytics.Testing(snap.Testing, f),
		Field:         analytics.Field(snap.Field, f),
		Sales:         analytics.Sales(snap.Sales, f, unitPrice),
	}, nil
}

// Format renders a Summary as Slack mrkdwn.
func Format(s Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Operations digest* (last 24h, %s)\n", s.At.Format("Mon Jan 2 15:04"))

	m := s.Manufacturing.KPIs
	if s.Manufacturing.Records == 0 {
		b.WriteString("Manufacturing: no records\n")
	} else {
		fmt.Fprintf(&b, "Manufacturing: %d produced, %d scrap, efficiency %.1f%% (%d records)",
			m.TotalProduction, m.TotalScrap, m.Efficiency, s.Manufacturing.Records)
		if len(s.Manufacturing.TopMachines) > 0 {
			top := s.Manufacturing.TopMachines[0]
			fmt.Fprintf(&b, ", top machine %s (%d)", top.Name, top.Metric("production"))
		}
		b.WriteString("\n")
	}

	q := s.Testing.KPIs
	if s.Testing.Records == 0 {
		b.WriteString("Testing: no records\n")
	} else {
		fmt.Fprintf(&b, "Testing: %d tested, pass rate %.1f%%, %d failed across %d batches\n",
			q.TotalTested, q.PassRate, q.TotalFailed, q.Batches)
	}

	fv := s.Field.KPIs
	if s.Field.Records == 0 {
		b.WriteString("Field: no issues\n")
	} else {
		fmt.Fprintf(&b, "Field: %d issues, %d technicians", fv.TotalIssues, fv.UniqueTechnicians)
		if len(s.Field.Keywords) > 0 {
			fmt.Fprintf(&b, ", most mentioned %q", strings.ToLower(s.Field.Keywords[0].Name))
		}
		b.WriteString("\n")
	}

	sv := s.Sales.KPIs
	if s.Sales.Records == 0 {
		b.WriteString("Sales: no orders")
	} else {
		fmt.Fprintf(&b, "Sales: %d orders, %d units, est. revenue %.2f", sv.TotalOrders, sv.TotalQuantity, sv.TotalRevenue)
	}
	return b.String()
}

// Poster is the slice of the Slack client the digest needs.
type Poster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// NewSlackPoster returns a Slack client authenticated with a bot token.
func NewSlackPoster(token string, opts ...slack.Option) *slack.Client {
	return slack.New(token, opts...)
}

// Post sends text to channelID.
func Post(ctx context.Context, poster Poster, channelID, text string) error {
	if _, _, err := poster.PostMessageContext(ctx, channelID, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("post digest to %s: %w", channelID, err)
	}
	return nil
}

// Scheduler runs Build, Format and Post on a cron schedule.
type Scheduler struct {
	Store     storage.Store
	Poster    Poster
	ChannelID string
	Location  *time.Location
	UnitPrice float64
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	Clock     func() time.Time

	cron *cron.Cron
}

// RunOnce builds and posts a single digest, returning the posted text.
func (s *Scheduler) RunOnce(ctx context.Context) (string, error) {
	now := time.Now()
	if s.Clock != nil {
		now = s.Clock()
	}
	summary, err := Build(ctx, s.Store, now, s.location(), s.UnitPrice)
	if err != nil {
		s.Metrics.Digest(false)
		return "", err
	}
	text := Format(summary)
	if err := Post(ctx, s.Poster, s.ChannelID, text); err != nil {
		s.Metrics.Digest(false)
		return text, err
	}
	s.Metrics.Digest(true)
	return text, nil
}

// Start schedules RunOnce. The schedule is evaluated in Location.
func (s *Scheduler) Start(schedule cron.Schedule) {
	logger := s.logger()
	c := cron.New(cron.WithLocation(s.location()), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(schedule, cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), buildTimeout)
		defer cancel()
		if _, err := s.RunOnce(ctx); err != nil {
			logger.Error("digest failed", zap.Error(err))
			return
		}
		logger.Info("digest posted", zap.String("channel", s.ChannelID))
	}))
	s.cron = c
	c.Start()

	next := schedule.Next(time.Now().In(s.location()))
	logger.Info("digest scheduled",
		zap.String("channel", s.ChannelID),
		zap.Time("next", next),
	)
}

// Stop waits for a running digest to finish.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

func (s *Scheduler) location() *time.Location {
	if s.Location == nil {
		return time.Local
	}
	return s.Location
}

func (s *Scheduler) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
