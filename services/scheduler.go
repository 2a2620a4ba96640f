// services/scheduler.go
package services

import (
	"log"
	"time"

	"achievement-engine/models"

	"github.com/go-co-op/gocron/v2"
)

// StartCommandSweep re-broadcasts the work-available signal while commands
// sit in the queue, covering bridges that missed the original push (e.g.
// reconnected after a restart). Queue rows are only ever removed by an
// explicit bridge acknowledgement, never by the sweep.
func (s *RewardService) StartCommandSweep() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			var pending int64
			if err := s.DB.Model(&models.PendingCommand{}).Count(&pending).Error; err != nil {
				log.Printf("[Scheduler] DB error counting pending commands: %v", err)
				return
			}
			if pending == 0 {
				return
			}
			log.Printf("[Scheduler] %d pending command(s) in queue, re-notifying %d connected bridge(s)",
				pending, s.Notifier.Connected())
			s.Notifier.Broadcast(EventNewCommand)
		}),
	)
}
