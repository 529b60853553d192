package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/psds-microservice/support-bot/internal/config"
	"github.com/psds-microservice/support-bot/internal/database"
	"github.com/psds-microservice/support-bot/internal/kafka"
	"github.com/psds-microservice/support-bot/internal/model"
	"github.com/psds-microservice/support-bot/internal/searchindex"
	"github.com/spf13/cobra"
)

var reindexSearchCmd = &cobra.Command{
	Use:   "reindex-search",
	Short: "Reindex all tickets into search. Prefers Kafka; falls back to HTTP if SEARCH_SERVICE_URL set.",
	RunE:  runReindexSearch,
}

func init() {
	rootCmd.AddCommand(reindexSearchCmd)
}

const eventTicketReindex = "ticket.reindex"

func runReindexSearch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	conn, err := database.Connect(cfg.DB.Driver, cfg.DSN(), cfg.DatabaseURL())
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	if sqlDB, err := conn.DB(); err == nil {
		defer sqlDB.Close()
	}

	var tickets []model.Ticket
	if err := conn.Order("ticket_no ASC").Find(&tickets).Error; err != nil {
		return fmt.Errorf("list tickets: %w", err)
	}
	log.Printf("reindex-search: found %d tickets", len(tickets))

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
	defer cancel()

	// Prefer Kafka, then HTTP
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopicTicket != "" {
		log.Println("reindex-search: using Kafka for reindexing")
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopicTicket)
		defer producer.Close()
		for i := range tickets {
			producer.ProduceTicketEvent(ctx, eventTicketReindex, kafka.TicketPayload(&tickets[i]))
			if (i+1)%50 == 0 || i == len(tickets)-1 {
				log.Printf("reindex-search: sent %d/%d events to Kafka", i+1, len(tickets))
			}
		}
		log.Printf("reindex-search: done, sent %d events to Kafka (search-service worker will index them)", len(tickets))
		return nil
	}
	if cfg.SearchServiceURL != "" {
		log.Println("reindex-search: using HTTP for reindexing")
		client := searchindex.NewClient(cfg.SearchServiceURL)
		failed := 0
		for i := range tickets {
			if !client.IndexTicket(ctx, &tickets[i]) {
				failed++
			}
			if (i+1)%50 == 0 || i == len(tickets)-1 {
				log.Printf("reindex-search: indexed %d/%d", i+1, len(tickets))
			}
		}
		log.Printf("reindex-search: done, indexed %d tickets via HTTP, %d failed", len(tickets)-failed, failed)
		return nil
	}
	log.Println("reindex-search: neither KAFKA_BROKERS nor SEARCH_SERVICE_URL set")
	log.Printf("reindex-search: found %d tickets (not reindexed)", len(tickets))
	return nil
}
