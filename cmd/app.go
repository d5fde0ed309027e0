package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/class-attendance/internal/attendance"
	"github.com/kozaktomas/class-attendance/internal/config"
	"github.com/kozaktomas/class-attendance/internal/database/postgres"
	"github.com/kozaktomas/class-attendance/internal/detector"
	"github.com/kozaktomas/class-attendance/internal/enroll"
	"github.com/kozaktomas/class-attendance/internal/storage"
)

// app holds the long-lived handles shared by the commands that touch the database.
type app struct {
	cfg        *config.Config
	pool       *postgres.Pool
	students   *postgres.StudentRepository
	profiles   *postgres.ProfileRepository
	engine     *detector.Engine
	attendance *attendance.Service
	leave      *attendance.LeaveService
	enroll     *enroll.Service
}

// openApp connects to PostgreSQL and builds the services. The detector engine is
// created once here so every scan shares its concurrency limit.
func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}
	if err := cfg.Pipeline.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline configuration: %w", err)
	}

	pool, err := postgres.Open(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}

	store, err := storage.New(cfg.Storage.Dir)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	students := postgres.NewStudentRepository(pool)
	profiles := postgres.NewProfileRepository(pool)
	sessions := postgres.NewSessionRepository(pool)
	records := postgres.NewRecordRepository(pool)
	engine := detector.NewEngine(detector.NewClient(cfg.Detector.URL), cfg.Detector.Concurrency, cfg.Detector.Timeout)

	return &app{
		cfg:      cfg,
		pool:     pool,
		students: students,
		profiles: profiles,
		engine:   engine,
		attendance: &attendance.Service{
			Students:     students,
			Profiles:     profiles,
			Sessions:     sessions,
			Records:      records,
			Store:        store,
			Pipeline:     attendance.NewPipeline(engine, cfg.Pipeline),
			ProofQuality: cfg.Pipeline.ProofQuality,
		},
		leave: &attendance.LeaveService{
			Students: students,
			Sessions: sessions,
			Records:  records,
			Leaves:   postgres.NewLeaveRepository(pool),
			Store:    store,
		},
		enroll: &enroll.Service{
			Detector:       engine,
			Students:       students,
			Profiles:       profiles,
			Store:          store,
			MatchThreshold: cfg.Pipeline.MatchThreshold,
			Model:          cfg.Detector.Model,
		},
	}, nil
}

// initProfileHNSW builds or loads the profile index used for enrollment collision checks.
func (a *app) initProfileHNSW(ctx context.Context) {
	indexPath := a.cfg.Database.HNSWIndexPath
	if indexPath != "" {
		fmt.Printf("Loading profile HNSW index from %s...\n", indexPath)
	} else {
		fmt.Printf("Building in-memory HNSW index for face profiles...\n")
	}
	if err := a.profiles.EnableHNSW(ctx, indexPath); err != nil {
		fmt.Printf("Warning: Failed to build profile HNSW index: %v\n", err)
		fmt.Printf("Collision checks will use PostgreSQL queries (slower)\n")
	} else if indexPath != "" {
		fmt.Printf("Profile HNSW index ready with %d profiles (persisted to %s)\n", a.profiles.HNSWCount(), indexPath)
	} else {
		fmt.Printf("Profile HNSW index built with %d profiles (in-memory only)\n", a.profiles.HNSWCount())
	}
}

func (a *app) saveProfileHNSW(ctx context.Context) {
	if err := a.profiles.SaveHNSWIndex(ctx); err != nil {
		fmt.Printf("Warning: failed to save profile HNSW index: %v\n", err)
	} else if a.cfg.Database.HNSWIndexPath != "" {
		fmt.Println("Profile HNSW index saved to disk")
	}
}

func (a *app) Close() {
	if err := a.pool.Close(); err != nil {
		fmt.Printf("Warning: closing database: %v\n", err)
	}
}
