package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/qs3c/exam_go_server/config"
	"github.com/qs3c/exam_go_server/internal/database"
	"github.com/qs3c/exam_go_server/internal/pkg/cron"
	"github.com/qs3c/exam_go_server/internal/repository"
	"github.com/qs3c/exam_go_server/internal/service"
)

var (
	dryRun       = flag.Bool("dry-run", true, "Dry run mode, don't actually delete files")
	uploadExpire = flag.Int("upload-expire", 24, "Hours to keep uploaded exam files")
	staleMinutes = flag.Int("stale-minutes", 30, "Minutes before a processing job is considered stuck")
	cleanUploads = flag.Bool("clean-uploads", true, "Clean expired upload files")
	reapStale    = flag.Bool("reap-stale", true, "Mark stuck processing jobs as failed")
)

func main() {
	flag.Parse()

	log.Println("Starting cleanup task...")
	log.Printf("Mode: dry-run=%v", *dryRun)

	// 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 连接数据库
	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	examRepo := repository.NewExamRepository(db)
	quotaService := service.NewQuotaService(repository.NewUserRepository(db), cfg)

	deletedFiles := 0
	var freedSize int64

	// 1. 清理过期的本地上传文件
	if *cleanUploads {
		log.Printf("Cleaning expired upload files (older than %d hours)...", *uploadExpire)
		olderThan := time.Now().Add(-time.Duration(*uploadExpire) * time.Hour)

		paths, err := examRepo.ListExpiredLocalFiles(olderThan)
		if err != nil {
			log.Fatalf("Failed to query expired files: %v", err)
		}

		for _, path := range paths {
			info, err := os.Stat(path)
			if os.IsNotExist(err) {
				continue
			}
			if err != nil {
				log.Printf("  failed to stat %s: %v", path, err)
				continue
			}

			log.Printf("  - %s (%s, %s old)", path, formatSize(info.Size()),
				time.Since(info.ModTime()).Round(time.Hour))

			if !*dryRun {
				if err := os.Remove(path); err != nil {
					log.Printf("    failed to delete: %v", err)
					continue
				}
			}
			deletedFiles++
			freedSize += info.Size()
		}
	}

	// 2. 僵死任务置为失败并退还配额
	if *reapStale && !*dryRun {
		olderThan := time.Now().Add(-time.Duration(*staleMinutes) * time.Minute)
		exams, err := examRepo.FailStaleProcessing(olderThan, cron.StaleJobMessage)
		if err != nil {
			log.Printf("Failed to reap stale jobs: %v", err)
		} else if len(exams) > 0 {
			for _, exam := range exams {
				if err := quotaService.RefundQuota(exam.UserID); err != nil {
					log.Printf("Failed to refund quota for exam %d: %v", exam.ID, err)
				}
			}
			log.Printf("Marked %d stale processing jobs as failed, quotas refunded", len(exams))
		}
	}

	// 输出统计
	log.Printf("Deleted files: %d, freed space: %s", deletedFiles, formatSize(freedSize))
	if *dryRun {
		log.Println("DRY RUN MODE - No files were actually deleted")
		log.Println("Run with -dry-run=false to actually delete files")
	} else {
		log.Println("Cleanup completed")
	}
}

// formatSize 格式化文件大小
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
