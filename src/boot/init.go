package boot

import (
	"log"
	"time"

	"cpass/src/db"
	"cpass/src/lib"
	"cpass/src/models"

	"github.com/go-co-op/gocron/v2"
	"gorm.io/gorm"
)

func InitDb() *gorm.DB {
	db := db.GetDb()

	err := db.AutoMigrate(
		&models.Ticket{},
		&models.ScanEvent{},
		&models.Transaction{},
	)
	if err != nil {
		log.Fatalf("error migration: %s", err.Error())
	}

	return db
}

// InitScheduler starts the expiry sweep. The sweep closure comes from main
// so the scheduler package stays free of engine wiring.
func InitScheduler(sweep func()) {
	sched, err := lib.GetScheduler()
	if err != nil {
		log.Println("An error has occurred. Check logs for info")
		return
	}
	j, err := sched.NewJob(
		gocron.DurationJob(time.Minute),
		gocron.NewTask(sweep),
	)
	if err != nil {
		log.Printf("Error creating expiry sweep job: %s\n", err.Error())
		return
	}
	log.Printf("Expiry sweep job: %s\n", j.ID().String())
	sched.Start()
}

func StopScheduler() {
	sched, err := lib.GetScheduler()
	if err != nil {
		log.Println("Error retrieving Scheduler. Check logs for info")
		return
	}
	err = sched.Shutdown()
	if err != nil {
		log.Println("An error has occurred while stopping Scheduler. Check logs for info")
		return
	}
}

func InitBroker() {
	go lib.KafkaCreateTopics(lib.ScanTopic)
}
