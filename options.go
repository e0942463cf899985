package zio

const (
	block1k = 1 * 1024
	block4k = 4 * 1024

	defaultBufferSize = 32 * block1k
	defaultRetries    = 8
)

type Option func(o *options)

type options struct {
	bufferSize int
	sync       *bool
	scheduler  *Scheduler
	retries    int
}

func newOptions(opts []Option) *options {
	o := &options{
		bufferSize: defaultBufferSize,
		retries:    defaultRetries,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.bufferSize <= 0 {
		o.bufferSize = defaultBufferSize
	}
	if o.retries < 0 {
		o.retries = 0
	}
	if o.scheduler == nil {
		o.scheduler = DefaultScheduler()
	}
	return o
}

// WithBufferSize sets the capacity of the stream buffer window.
func WithBufferSize(size int) Option {
	return func(o *options) {
		o.bufferSize = size
	}
}

// WithSync forces (or disables) flushing after every buffered write.
func WithSync(sync bool) Option {
	return func(o *options) {
		o.sync = &sync
	}
}

// WithScheduler makes the stream suspend on s instead of the package scheduler.
func WithScheduler(s *Scheduler) Option {
	return func(o *options) {
		o.scheduler = s
	}
}

// WithRetries bounds how many times a raw read or write is retried after
// EINTR or EAGAIN before the error is surfaced.
func WithRetries(n int) Option {
	return func(o *options) {
		o.retries = n
	}
}
