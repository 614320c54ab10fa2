package jobs

import (
	"log"
	"time"

	"github.com/AfyaLink/afyachat-backend/internal/storage"
)

// PaymentSweepJob expires pending payments whose callback never arrived. It
// only transitions entries still in the initiated state past the deadline,
// so it is safe to run alongside live reconciliation.
type PaymentSweepJob struct {
	store     storage.Store
	interval  time.Duration
	window    time.Duration
	isRunning bool
}

// NewPaymentSweepJob creates the sweep job. interval is how often it runs,
// window is how long an initiated payment may wait for its callback.
func NewPaymentSweepJob(store storage.Store, interval, window time.Duration) *PaymentSweepJob {
	return &PaymentSweepJob{
		store:    store,
		interval: interval,
		window:   window,
	}
}

// Start begins the sweep loop
func (j *PaymentSweepJob) Start() {
	if j.isRunning {
		log.Println("Payment sweep job already running")
		return
	}
	j.isRunning = true
	log.Printf("Starting payment sweep job (every %v, window %v)", j.interval, j.window)

	go j.run()
}

// Stop halts the sweep loop after the current tick
func (j *PaymentSweepJob) Stop() {
	j.isRunning = false
	log.Println("Stopping payment sweep job...")
}

func (j *PaymentSweepJob) run() {
	for j.isRunning {
		time.Sleep(j.interval)
		if !j.isRunning {
			break
		}

		expired, err := j.store.ExpirePendingPayments(time.Now().Add(-j.window))
		if err != nil {
			log.Printf("Error sweeping expired payments: %v", err)
			continue
		}
		if expired > 0 {
			log.Printf("🧹 Expired %d stale pending payment(s)", expired)
		}
	}
}
