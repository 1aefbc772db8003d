package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/barstock/locking"
	"github.com/warp/barstock/shift"
)

const defaultRetries = 3

// DefaultTolerance is the allowed gap between a closing weight and the
// ledger's expected weight before a reconciliation is flagged.
var DefaultTolerance = decimal.NewFromInt(5)

// settings are shared by the Ledger and the Reconciler so one option list
// configures both.
type settings struct {
	calendar  shift.Calendar
	locker    Locker
	log       logrus.FieldLogger
	now       func() time.Time
	newID     func() string
	retries   int
	tolerance decimal.Decimal
}

func defaultSettings() settings {
	return settings{
		calendar:  shift.NewCalendar(time.Local),
		locker:    locking.NewLocal(),
		log:       logrus.StandardLogger(),
		now:       time.Now,
		newID:     uuid.NewString,
		retries:   defaultRetries,
		tolerance: DefaultTolerance,
	}
}

type Option func(*settings)

func WithClock(now func() time.Time) Option { return func(s *settings) { s.now = now } }

func WithCalendar(cal shift.Calendar) Option { return func(s *settings) { s.calendar = cal } }

// WithLocker replaces the in-process lock, e.g. with a Redis lock shared by
// several server processes. Pass the same Locker to the Ledger and the
// Reconciler.
func WithLocker(lk Locker) Option { return func(s *settings) { s.locker = lk } }

func WithLogger(log logrus.FieldLogger) Option { return func(s *settings) { s.log = log } }

func WithIDGenerator(gen func() string) Option { return func(s *settings) { s.newID = gen } }

// WithRetries bounds how often a mutation is retried after losing an
// optimistic version check.
func WithRetries(n int) Option { return func(s *settings) { s.retries = n } }

func WithTolerance(t decimal.Decimal) Option { return func(s *settings) { s.tolerance = t.Abs() } }
