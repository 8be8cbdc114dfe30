package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"skywatch/internal/version"
)

const (
	kpIndexPath = "/products/noaa-planetary-k-index.json"
	flaresPath  = "/json/goes/primary/xray-flares-7-day.json"
)

var timeLayouts = []string{
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// SWPCOptions parameterise the NOAA SWPC fetcher.
type SWPCOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// SWPC fetches Kp and flare series from the NOAA Space Weather Prediction Center.
type SWPC struct {
	client *resty.Client
	logger zerolog.Logger
}

// NewSWPC constructs a SWPC fetcher.
func NewSWPC(opts SWPCOptions, logger zerolog.Logger) *SWPC {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://services.swpc.noaa.gov"
	}

	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = version.UserAgent()
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", ua)

	return &SWPC{
		client: client,
		logger: logger.With().Str("component", "swpc_fetcher").Logger(),
	}
}

// KpSeries returns the planetary K-index series, oldest first.
func (s *SWPC) KpSeries(ctx context.Context) ([]KpReading, error) {
	body, err := s.get(ctx, kpIndexPath)
	if err != nil {
		return nil, err
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode kp series: %w", err)
	}

	readings := make([]KpReading, 0, len(rows))
	for _, row := range rows {
		reading, ok, err := parseKpRow(row)
		if err != nil {
			return nil, err
		}
		if ok {
			readings = append(readings, reading)
		}
	}
	sort.Slice(readings, func(i, j int) bool { return readings[i].Time.Before(readings[j].Time) })

	s.logger.Debug().Int("samples", len(readings)).Msg("kp series fetched")
	return readings, nil
}

// FlareSeries returns the last week of GOES flare events, oldest first.
func (s *SWPC) FlareSeries(ctx context.Context) ([]Flare, error) {
	body, err := s.get(ctx, flaresPath)
	if err != nil {
		return nil, err
	}

	var events []flareEvent
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, fmt.Errorf("decode flare series: %w", err)
	}

	flares := make([]Flare, 0, len(events))
	for _, ev := range events {
		if ev.MaxClass == "" {
			continue
		}
		stamp := ev.MaxTime
		if stamp == "" {
			stamp = ev.BeginTime
		}
		peak, err := parseTime(stamp)
		if err != nil {
			return nil, fmt.Errorf("parse flare time: %w", err)
		}
		flares = append(flares, Flare{Class: ev.MaxClass, PeakTime: peak})
	}
	sort.Slice(flares, func(i, j int) bool { return flares[i].PeakTime.Before(flares[j].PeakTime) })

	s.logger.Debug().Int("flares", len(flares)).Msg("flare series fetched")
	return flares, nil
}

func (s *SWPC) get(ctx context.Context, path string) ([]byte, error) {
	resp, err := s.client.R().SetContext(ctx).Get(path)
	if err != nil {
		return nil, fmt.Errorf("swpc request %s: %w", path, err)
	}
	if resp.IsError() {
		return nil, parseHTTPError(resp.StatusCode(), resp.Body())
	}
	return resp.Body(), nil
}

type flareEvent struct {
	BeginTime string `json:"begin_time"`
	MaxTime   string `json:"max_time"`
	MaxClass  string `json:"max_class"`
}

type kpObject struct {
	TimeTag string          `json:"time_tag"`
	Kp      json.RawMessage `json:"Kp"`
}

// parseKpRow accepts both the legacy array-of-arrays layout (with a header row) and the
// array-of-objects layout. ok=false marks the header row or a row without a Kp value.
func parseKpRow(row json.RawMessage) (KpReading, bool, error) {
	trimmed := strings.TrimSpace(string(row))
	if strings.HasPrefix(trimmed, "[") {
		var cells []string
		if err := json.Unmarshal(row, &cells); err != nil {
			return KpReading{}, false, fmt.Errorf("decode kp row: %w", err)
		}
		if len(cells) < 2 {
			return KpReading{}, false, errors.New("kp row has fewer than two cells")
		}
		if strings.EqualFold(cells[0], "time_tag") || strings.TrimSpace(cells[1]) == "" {
			return KpReading{}, false, nil
		}
		return buildKpReading(cells[0], cells[1])
	}

	var obj kpObject
	if err := json.Unmarshal(row, &obj); err != nil {
		return KpReading{}, false, fmt.Errorf("decode kp object: %w", err)
	}
	kp := strings.Trim(strings.TrimSpace(string(obj.Kp)), `"`)
	if kp == "" || kp == "null" {
		return KpReading{}, false, nil
	}
	return buildKpReading(obj.TimeTag, kp)
}

func buildKpReading(stamp, kp string) (KpReading, bool, error) {
	at, err := parseTime(stamp)
	if err != nil {
		return KpReading{}, false, fmt.Errorf("parse kp time: %w", err)
	}
	value, err := decimal.NewFromString(strings.TrimSpace(kp))
	if err != nil {
		return KpReading{}, false, fmt.Errorf("parse kp value %q: %w", kp, err)
	}
	return KpReading{Time: at, Kp: value}, true, nil
}

func parseTime(v string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(v)); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", v)
}

func parseHTTPError(status int, payload []byte) error {
	if len(payload) > 0 {
		text := strings.TrimSpace(string(payload))
		if r := []rune(text); len(r) > 200 {
			text = string(r[:200])
		}
		return fmt.Errorf("swpc api error (%d): %s", status, text)
	}
	return fmt.Errorf("swpc api error (%d)", status)
}

var _ SpaceWeather = (*SWPC)(nil)
