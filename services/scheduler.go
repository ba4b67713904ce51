package services

import (
	"log"
	"time"

	"github.com/veebeeyoukay/6-7game-beta/models"

	"github.com/go-co-op/gocron/v2"
	"gorm.io/gorm"
)

// StartExpirySweep runs a minutely housekeeping job that marks stale
// pending validation requests and unaccepted battles expired. The lazy
// expiry checks inside the services stay authoritative; the sweep only
// tidies rows nobody happens to be reading.
func StartExpirySweep(db *gorm.DB) {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			now := time.Now()

			res := db.Model(&models.ValidationRequest{}).
				Where("status = ? AND requested_at < ?", models.RequestPending, now.Add(-PendingRequestWindow)).
				Update("status", models.RequestExpired)
			if res.Error != nil {
				log.Printf("[Sweep] DB error expiring validation requests: %v", res.Error)
			} else if res.RowsAffected > 0 {
				log.Printf("[Sweep] Expired %d stale validation requests", res.RowsAffected)
			}

			res = db.Model(&models.Battle{}).
				Where("status = ? AND expires_at < ?", models.BattlePending, now).
				Update("status", models.BattleExpired)
			if res.Error != nil {
				log.Printf("[Sweep] DB error expiring battles: %v", res.Error)
			} else if res.RowsAffected > 0 {
				log.Printf("[Sweep] Expired %d unaccepted battles", res.RowsAffected)
			}
		}),
	)
}
