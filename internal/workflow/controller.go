package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/labstack/gommon/log"

	"github.com/sortflow/backend/internal/models"
	"github.com/sortflow/backend/internal/remote"
	"github.com/sortflow/backend/internal/storage"
	"github.com/sortflow/backend/internal/table"
	"github.com/sortflow/backend/internal/upload"
)

// Submit control labels.
const (
	LabelUpload   = "Upload"
	LabelUploaded = "Uploaded"
)

// Controller runs the upload workflow for one browser session. At most one
// job is live at a time; starting another, or selecting a new file,
// cancels and discards the previous one.
type Controller struct {
	cfg       Config
	store     storage.ObjectStore
	invoker   remote.Invoker
	tables    *table.Renderer
	outputKey func(string) string
	logger    *log.Logger

	mu              sync.Mutex
	closed          bool
	fileNameDisplay string
	submitEnabled   bool
	submitLabel     string
	statusVisible   bool
	statusText      string
	progressVisible bool
	progressText    string
	job             *models.Job
	cancel          context.CancelFunc
	hideTimer       *time.Timer
	revision        uint64

	wg sync.WaitGroup
}

// NewController creates an idle controller.
func NewController(cfg Config, store storage.ObjectStore, invoker remote.Invoker) (*Controller, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workflow config: %w", err)
	}
	outputKey, err := OutputKeyFunc(cfg.OutputKeyRule)
	if err != nil {
		return nil, err
	}

	return &Controller{
		cfg:         cfg,
		store:       store,
		invoker:     invoker,
		tables:      table.NewRenderer(),
		outputKey:   outputKey,
		logger:      log.New("workflow"),
		submitLabel: LabelUpload,
	}, nil
}

// Tables exposes the rendered regions.
func (c *Controller) Tables() *table.Renderer {
	return c.tables
}

// OnFileSelected reflects a new file choice. A nil file means the picker
// was cleared. Any job in flight is cancelled and discarded.
func (c *Controller) OnFileSelected(file *models.SelectedFile) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.discardJobLocked()
	if file == nil {
		c.fileNameDisplay = ""
		c.submitEnabled = false
		c.statusText = MsgNoFile
		c.statusVisible = true
	} else {
		c.fileNameDisplay = "Selected File: " + file.Name
		c.submitEnabled = true
		c.statusText = ""
		c.statusVisible = false
	}
	c.bumpLocked()
}

// Submit validates file and starts a job for it. The upload, invocation
// and polling run in the background; the returned job is a snapshot taken
// at the start.
func (c *Controller) Submit(file *models.SelectedFile) (*models.Job, error) {
	if file == nil {
		return nil, ValidationError(MsgSelectFile)
	}
	if !c.cfg.allows(file.Extension()) {
		return nil, ValidationError(fmt.Sprintf("Please upload a %s file only", c.cfg.extensionHint()))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	c.discardJobLocked()

	now := c.cfg.Now()
	job := models.NewJob(uuid.NewString(), file.Name, now)
	job.InputBucket = c.cfg.InputBucket
	job.InputKey = c.cfg.InputPrefix + file.Name
	job.OutputBucket = c.cfg.OutputBucket
	job.OutputKey = c.outputKey(file.Name)
	if err := job.Transition(models.JobStatusUploading, now); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.job = job
	c.cancel = cancel

	c.fileNameDisplay = "Selected File: " + file.Name
	c.submitEnabled = true
	c.submitLabel = LabelUpload
	c.statusVisible = true
	c.statusText = MsgUploading
	c.progressVisible = true
	c.progressText = progressText(0)
	c.tables.Clear(models.RegionSorted)
	c.bumpLocked()

	c.logger.Infof("job %s: uploading %s (%d bytes) to %s/%s", job.ID, file.Name, len(file.Content), job.InputBucket, job.InputKey)

	c.wg.Add(2)
	go c.preview(job.ID, string(file.Content))
	go c.run(ctx, job.Clone(), file)

	return job.Clone(), nil
}

// CheckResult reads the sorted object once and renders it. On a finished
// job it re-reads and re-renders without changing the status.
func (c *Controller) CheckResult(ctx context.Context) error {
	c.mu.Lock()
	job := c.job.Clone()
	c.mu.Unlock()

	if job == nil {
		return ErrNoJob
	}
	switch job.Status {
	case models.JobStatusPolling, models.JobStatusDone:
	default:
		return fmt.Errorf("%w: job %s is %s", ErrNotReady, job.ID, job.Status)
	}

	data, err := c.store.Retrieve(ctx, job.OutputBucket, job.OutputKey)
	if err != nil {
		werr := RetrievalError(err)
		c.fail(job.ID, werr)
		return werr
	}
	c.complete(job.ID, data)
	return nil
}

// Download signs a short-lived link to the sorted object.
func (c *Controller) Download(ctx context.Context) (*models.DownloadLink, error) {
	c.mu.Lock()
	job := c.job.Clone()
	c.mu.Unlock()

	if job == nil {
		return nil, ErrNoJob
	}
	if job.Status != models.JobStatusDone {
		return nil, fmt.Errorf("%w: job %s is %s", ErrNotReady, job.ID, job.Status)
	}

	name := "sorted-" + job.FileName
	url, err := c.store.Sign(ctx, job.OutputBucket, job.OutputKey, c.cfg.LinkTTL, storage.WithDownloadName(name))
	if err != nil {
		return nil, fmt.Errorf("signing download link: %w", err)
	}

	c.logger.Infof("job %s: issued download link for %s/%s, valid %s", job.ID, job.OutputBucket, job.OutputKey, c.cfg.LinkTTL)
	return &models.DownloadLink{
		URL:       url,
		FileName:  name,
		ExpiresAt: c.cfg.Now().Add(c.cfg.LinkTTL),
	}, nil
}

// Current returns a copy of the live job, or nil.
func (c *Controller) Current() *models.Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.job.Clone()
}

// Revision increases on every state change.
func (c *Controller) Revision() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.revision
}

// View projects the current state as the page should show it at now.
func (c *Controller) View(now time.Time) models.View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := models.View{
		Revision:        c.revision,
		FileNameDisplay: c.fileNameDisplay,
		SubmitEnabled:   c.submitEnabled,
		SubmitLabel:     c.submitLabel,
		StatusVisible:   c.statusVisible,
		StatusText:      c.statusText,
		ProgressVisible: c.progressVisible,
		ProgressText:    c.progressText,
		Tables:          c.tables.Snapshot(),
	}

	if c.job == nil {
		return v
	}
	v.Job = c.job.Clone()
	v.ProgressPercent = c.job.Progress

	if c.job.Status == models.JobStatusDone {
		v.DownloadVisible = true
		v.DownloadEnabled = true
		if c.job.CompletedAt != nil && !now.Before(c.job.CompletedAt.Add(c.cfg.HideDelay)) {
			v.ProgressVisible = false
			v.StatusVisible = false
			v.SubmitEnabled = false
			v.SubmitLabel = LabelUploaded
		}
	}
	return v
}

// Close cancels the live job and refuses new submissions. The job ends
// as canceled once its goroutine notices.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.cancel != nil {
		c.cancel()
	}
	if c.hideTimer != nil {
		c.hideTimer.Stop()
	}
}

// Wait blocks until background work for every submitted job has returned.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) preview(jobID, content string) {
	defer c.wg.Done()

	rows := table.Split(content)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isCurrentLocked(jobID) {
		return
	}
	c.tables.Render(models.RegionUnsorted, rows)
	c.bumpLocked()
}

func (c *Controller) run(ctx context.Context, job *models.Job, file *models.SelectedFile) {
	defer c.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Errorf("job %s: panic recovered: %v", job.ID, r)
			c.fail(job.ID, TransferError(fmt.Errorf("panic: %v", r)))
		}
	}()

	start := time.Now()
	tracker := upload.NewTracker(func(percent int) {
		c.setProgress(job.ID, percent)
	})

	contentType := file.ContentType
	if contentType == "" {
		contentType = storage.DetectContentType(file.Name, file.Content)
	}

	if err := c.store.Store(ctx, job.InputBucket, job.InputKey, file.Content, contentType, tracker.Update); err != nil {
		c.failWith(ctx, job.ID, TransferError(err))
		return
	}
	c.logger.Infof("job %s: upload finished in %v", job.ID, time.Since(start))

	if !c.advance(job.ID, models.JobStatusInvoking) {
		return
	}

	payload, err := remote.NewStorageEvent(job.InputBucket, job.InputKey)
	if err != nil {
		c.fail(job.ID, TransferError(err))
		return
	}
	if _, err := c.invoker.Invoke(ctx, c.cfg.FunctionName, payload); err != nil {
		c.failWith(ctx, job.ID, TransferError(err))
		return
	}
	c.logger.Infof("job %s: invoked %s", job.ID, c.cfg.FunctionName)

	if !c.advance(job.ID, models.JobStatusPolling) {
		return
	}
	c.poll(ctx, job)
}

// poll waits PollDelay, then checks for the sorted object, backing off
// exponentially while it is still missing.
func (c *Controller) poll(ctx context.Context, job *models.Job) {
	if c.cfg.PollDelay > 0 {
		timer := time.NewTimer(c.cfg.PollDelay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			c.fail(job.ID, CanceledError(ctx.Err()))
			return
		}
	}

	pollCtx, cancel := context.WithTimeout(ctx, c.cfg.PollTimeout)
	defer cancel()

	var data []byte
	attempts := 0
	op := func() error {
		attempts++
		c.recordAttempt(job.ID, attempts)

		body, err := c.store.Retrieve(pollCtx, job.OutputBucket, job.OutputKey)
		if err != nil {
			if storage.IsNotFound(err) {
				c.logger.Debugf("job %s: result not ready (attempt %d)", job.ID, attempts)
				return err
			}
			return backoff.Permanent(err)
		}
		data = body
		return nil
	}

	err := backoff.Retry(op, c.newBackOff(pollCtx))
	switch {
	case err == nil:
		c.complete(job.ID, data)
	case ctx.Err() != nil:
		c.fail(job.ID, CanceledError(ctx.Err()))
	case storage.IsNotFound(err), errors.Is(err, context.DeadlineExceeded):
		c.fail(job.ID, TimeoutError(attempts, err))
	default:
		c.fail(job.ID, RetrievalError(err))
	}
}

func (c *Controller) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.PollInterval
	b.MaxInterval = c.cfg.PollMaxInterval
	b.MaxElapsedTime = c.cfg.PollTimeout
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.PollMaxAttempts-1)), ctx)
}

func (c *Controller) setProgress(jobID string, percent int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isCurrentLocked(jobID) || c.job.Status != models.JobStatusUploading {
		return
	}
	c.job.Progress = percent
	c.job.UpdatedAt = c.cfg.Now()
	c.progressText = progressText(percent)
	c.bumpLocked()
}

func (c *Controller) recordAttempt(jobID string, attempts int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isCurrentLocked(jobID) {
		return
	}
	c.job.Attempts = attempts
	c.bumpLocked()
}

// advance moves the live job to the next stage, reporting false when the
// job was discarded or can no longer move.
func (c *Controller) advance(jobID string, to models.JobStatus) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isCurrentLocked(jobID) {
		return false
	}
	if err := c.job.Transition(to, c.cfg.Now()); err != nil {
		c.logger.Debugf("job %s: %v", jobID, err)
		return false
	}
	c.bumpLocked()
	return true
}

// complete renders the sorted content and marks the job done. On a job
// that is already done it only re-renders.
func (c *Controller) complete(jobID string, data []byte) {
	rows := table.Split(strings.ToValidUTF8(string(data), "\uFFFD"))

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isCurrentLocked(jobID) || c.job.Status == models.JobStatusFailed {
		return
	}

	c.tables.Render(models.RegionSorted, rows)
	if c.job.Status == models.JobStatusDone {
		c.bumpLocked()
		return
	}

	if err := c.job.Transition(models.JobStatusDone, c.cfg.Now()); err != nil {
		c.logger.Warnf("job %s: %v", jobID, err)
		return
	}
	c.statusText = MsgSorted
	c.statusVisible = true
	c.endJobLocked()
	c.hideTimer = time.AfterFunc(c.cfg.HideDelay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.bumpLocked()
	})
	c.bumpLocked()

	c.logger.Infof("job %s: sorted result ready at %s/%s", jobID, c.job.OutputBucket, c.job.OutputKey)
}

// failWith reports err unless ctx was cancelled, which takes precedence.
func (c *Controller) failWith(ctx context.Context, jobID string, err *Error) {
	if ctx.Err() != nil {
		err = CanceledError(ctx.Err())
	}
	c.fail(jobID, err)
}

// fail ends the live job. The progress display is left as it was.
func (c *Controller) fail(jobID string, werr *Error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isCurrentLocked(jobID) || c.job.Status.Terminal() {
		return
	}

	if err := c.job.Transition(models.JobStatusFailed, c.cfg.Now()); err != nil {
		c.logger.Warnf("job %s: %v", jobID, err)
		return
	}
	c.job.ErrorKind = string(werr.Kind)
	c.job.Error = werr.Error()
	c.statusText = werr.Message
	c.statusVisible = true
	c.endJobLocked()
	c.bumpLocked()

	c.logger.Warnf("job %s failed: %v", jobID, werr)
}

// discardJobLocked cancels and forgets the live job.
func (c *Controller) discardJobLocked() {
	if c.job != nil && !c.job.Status.Terminal() {
		c.logger.Infof("job %s: discarded while %s", c.job.ID, c.job.Status)
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.hideTimer != nil {
		c.hideTimer.Stop()
		c.hideTimer = nil
	}
	c.job = nil
	c.progressVisible = false
	c.progressText = ""
	c.submitLabel = LabelUpload
}

// endJobLocked releases the context of a job that reached a terminal state.
func (c *Controller) endJobLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Controller) isCurrentLocked(jobID string) bool {
	return c.job != nil && c.job.ID == jobID
}

func (c *Controller) bumpLocked() {
	c.revision++
}

func progressText(percent int) string {
	return fmt.Sprintf("Uploading... %d%%", percent)
}
