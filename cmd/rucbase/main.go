// Command rucbase is the client-facing entry point spec.md §6/§8
// describes: a REPL reading ';'-terminated statements from stdin, plus
// a one-shot `-e` flag and a `-f script.sql` batch flag.
//
// Grounded on the teacher's cmd/godb-server/main.go (a single main
// wiring an engine, running a fixed script, and printing results) —
// replaced here with a real cobra command and pflag-backed flags
// (SPEC_FULL.md §6, adopted from the kubernetes-kubernetes pack's
// cmd/manifest-query and cmd/gendocs use of cobra+pflag) since the
// teacher's main has no CLI surface of its own to generalize.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/llll-debug/rucbase-go/internal/config"
	"github.com/llll-debug/rucbase-go/internal/dblog"
	"github.com/llll-debug/rucbase-go/internal/qm"
)

var (
	configPath string
	dbName     string
	oneShot    string
	scriptPath string
)

func main() {
	root := &cobra.Command{
		Use:   "rucbase",
		Short: "rucbase is a teaching relational database engine",
		RunE:  run,
	}
	root.Flags().AddFlagSet(flag.CommandLine)
	root.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	root.Flags().StringVarP(&dbName, "db", "d", "default", "database name to open (created if missing)")
	root.Flags().StringVarP(&oneShot, "e", "e", "", "execute a single statement and exit")
	root.Flags().StringVarP(&scriptPath, "f", "f", "", "execute a ';'-terminated statement script and exit")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "rucbase:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	log := dblog.New(cfg.LogLevel)
	defer log.Sync()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return err
	}

	engine, err := openOrCreateEngine(dbName, cfg, log)
	if err != nil {
		return err
	}
	defer engine.Close()

	sess := qm.NewSession(engine)

	switch {
	case oneShot != "":
		return runOne(sess, oneShot)
	case scriptPath != "":
		return runScript(sess, scriptPath)
	default:
		return repl(sess)
	}
}

// openOrCreateEngine opens an existing database directory, falling
// back to creating a fresh one when it doesn't exist yet — mirroring
// spec.md §6's "connect to a database, creating it on first use".
func openOrCreateEngine(name string, cfg config.File, log *zap.SugaredLogger) (*qm.Engine, error) {
	if info, err := os.Stat(cfg.DataDir + "/" + name); err == nil && info.IsDir() {
		return qm.OpenEngine(name, cfg, log)
	}
	return qm.CreateEngine(name, cfg, log)
}

func runOne(sess *qm.Session, stmt string) error {
	out, err := sess.Execute(strings.TrimSuffix(strings.TrimSpace(stmt), ";"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		return err
	}
	fmt.Print(out)
	return nil
}

func runScript(sess *qm.Session, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return execStream(sess, f)
}

func repl(sess *qm.Session) error {
	fmt.Println("rucbase> ready. Statements end with ';'.")
	return execStream(sess, os.Stdin)
}

// execStream reads statements terminated by ';' from r, one at a
// time, driving sess.Execute and printing either the framed result
// table or an error line — internal/sql.Parse's own doc notes the
// caller (this reader) owns stripping the trailing ';'.
func execStream(sess *qm.Session, r *os.File) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var buf strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		buf.WriteString(line)
		buf.WriteString(" ")
		if !strings.Contains(line, ";") {
			continue
		}
		for _, stmt := range splitStatements(buf.String()) {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			out, err := sess.Execute(stmt)
			if err != nil {
				fmt.Fprintln(os.Stderr, "ERROR:", err)
				continue
			}
			fmt.Print(out)
		}
		buf.Reset()
	}
	return scanner.Err()
}

func splitStatements(s string) []string {
	parts := strings.Split(s, ";")
	if len(parts) > 0 && strings.TrimSpace(parts[len(parts)-1]) == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}
