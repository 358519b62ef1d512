// Read-only inspector for the chat keyspace. Opens the store of a running
// server (lock bypass) and prints decoded records, or serves the HTML
// inspector when a debug port is set.
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/kelseyhightower/envconfig"
	"github.com/olekukonko/tablewriter"

	"chat-relay/internal"
)

type ViewerConfig struct {
	BadgerFilepath string `envconfig:"BADGER_FILEPATH" required:"true"`
	Prefix         string `envconfig:"VIEWER_PREFIX" default:"msg:"`
	DebugPort      int    `envconfig:"VIEWER_DEBUG_PORT" default:"0"`
	Colours        bool   `envconfig:"VIEWER_COLOURS" default:"true"`
}

func main() {
	var config ViewerConfig
	if err := envconfig.Process("", &config); err != nil {
		log.Fatalf("Config error: %v", err)
	}
	if !config.Colours {
		color.Disable()
	}

	db, err := openDB(config.BadgerFilepath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	// Serve the HTML view when a port is configured, otherwise dump once.
	if config.DebugPort > 0 {
		emptyStats := func() map[string]any {
			return map[string]any{
				"Status": "Viewer Mode (Read-Only)",
				"Time":   time.Now().Format(time.RFC822),
			}
		}
		color.Green.Printf("Viewer started at http://localhost:%d/inspect\n", config.DebugPort)
		internal.StartDebugServer(db, config.DebugPort, "/inspect", internal.ChatMapper, emptyStats)
		select {}
	}

	if err := dump(db, config.Prefix); err != nil {
		log.Fatal(err)
	}
}

func dump(db *badger.DB, prefix string) error {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Type", "Timestamp", "Entity ID", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	rows := 0
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			err := item.Value(func(v []byte) error {
				row := internal.ChatMapper(string(item.Key()), v)
				table.Append([]string{row.Key, colourType(row.Type), row.Timestamp, row.EntityID, row.Detail})
				rows++
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	table.Render()
	color.Gray.Printf("\n%d record(s) under prefix %q\n", rows, prefix)
	return nil
}

func colourType(t string) string {
	switch t {
	case "USER":
		return color.Yellow.Sprint(t)
	case "ROOM", "DIRECT":
		return color.Cyan.Sprint(t)
	case "MESSAGE":
		return color.Green.Sprint(t)
	case "INDEX":
		return color.Gray.Sprint(t)
	default:
		return t
	}
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true).
		WithValueLogFileSize(10 * 1024 * 1024)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger open %s: %w", path, err)
	}
	return db, nil
}

