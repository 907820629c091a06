package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/helmintheca/archive-api/internal/models"
	"github.com/helmintheca/archive-api/internal/repository"
	"github.com/helmintheca/archive-api/pkg/config"
	"github.com/helmintheca/archive-api/pkg/database"
)

// Bulk-loads records from a CSV file into the archive. Used to seed a
// fresh deployment from a previously exported catalog.
func main() {
	var (
		filePath   string
		status     string
		uploadedBy string
		dryRun     bool
	)

	flag.StringVar(&filePath, "file", "records.csv", "Path to the CSV file")
	flag.StringVar(&status, "status", string(models.StatusApproved), "Status assigned to imported records")
	flag.StringVar(&uploadedBy, "uploaded-by", "importer", "User ID recorded as the uploader")
	flag.BoolVar(&dryRun, "dry-run", false, "Parse and validate without writing")
	flag.Parse()

	recordStatus := models.RecordStatus(strings.ToUpper(status))
	if !recordStatus.Valid() {
		log.Fatalf("invalid status %q", status)
	}

	records, err := parseFile(filePath, recordStatus, uploadedBy)
	if err != nil {
		log.Fatalf("failed to parse %s: %v", filePath, err)
	}
	fmt.Printf("Parsed %d records from %s\n", len(records), filePath)

	if dryRun {
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close()

	repo := repository.NewRecordRepository(db)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	imported := 0
	for i := range records {
		if err := repo.Create(ctx, &records[i]); err != nil {
			log.Printf("row %d (%s): %v", i+1, records[i].ScientificName, err)
			continue
		}
		imported++
	}
	fmt.Printf("Imported %d of %d records\n", imported, len(records))
	if imported < len(records) {
		os.Exit(1)
	}
}

func parseFile(path string, status models.RecordStatus, uploadedBy string) ([]models.Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := index["scientific_name"]; !ok {
		return nil, fmt.Errorf("missing scientific_name column")
	}

	var records []models.Record
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		get := func(column string) string {
			i, ok := index[column]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		name := get("scientific_name")
		if name == "" {
			return nil, fmt.Errorf("line %d: scientific_name is empty", line)
		}

		record := models.Record{
			ScientificName: name,
			CommonName:     get("common_name"),
			ArabicName:     get("arabic_name"),
			FrenchName:     get("french_name"),
			Description:    get("description"),
			HostSpecies:    get("host_species"),
			Type:           get("type"),
			Stage:          get("stage"),
			SampleType:     get("sample_type"),
			StainColor:     get("stain_color"),
			ImageURL:       get("image_url"),
			StudentName:    get("student_name"),
			SupervisorName: get("supervisor_name"),
			Status:         status,
			UploadedBy:     uploadedBy,
		}
		if raw := get("discovery_year"); raw != "" {
			year, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid discovery_year %q", line, raw)
			}
			if year < models.MinDiscoveryYear || year > time.Now().Year() {
				return nil, fmt.Errorf("line %d: discovery_year %d out of range", line, year)
			}
			record.DiscoveryYear = &year
		}
		records = append(records, record)
	}
	return records, nil
}
