package scheduler

import "context"

// FuncJob adapts a plain function into a Job.
type FuncJob struct {
	name string
	fn   func(ctx context.Context) error
}

// NewFuncJob wraps fn as a named Job, run with a background context.
func NewFuncJob(name string, fn func(ctx context.Context) error) FuncJob {
	return FuncJob{name: name, fn: fn}
}

func (f FuncJob) Name() string { return f.name }

func (f FuncJob) Run() error {
	return f.fn(context.Background())
}

// Standard cron expressions, evaluated in the scheduler's Asia/Seoul
// location: daily end-of-day prices/flows/news shortly after the KRX close,
// weekday-only fundamentals (listed companies publish these on business
// days), and a weekly catalog snapshot refresh.
const (
	ScheduleDailyCollection  = "0 0 16 * * *"    // 16:00 KST daily
	ScheduleFundamentals     = "0 30 16 * * MON-FRI"
	ScheduleCatalogRefresh   = "0 0 7 * * MON"
)
