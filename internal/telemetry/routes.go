package telemetry

import (
	"fmt"
	"log"
	"net/http"
	"text/tabwriter"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"
)

// AttachAdminRoutes mounts tailsql at /debug/tailsql/ and a run summary at
// /debug/runs.
func (s *Store) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Printf("[telemetry] failed to create tailsql server: %v", err)
	} else {
		tsql.SetDB("sqlite://telemetry.db", s.db, &tailsql.DBOptions{
			Label: "Telemetry DB",
		})
		debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	}

	debug.HandleFunc("runs", "recorded controller runs", func(w http.ResponseWriter, r *http.Request) {
		runs, err := s.Runs(r.Context(), 50)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RUN\tSTARTED\tENDED\tSENSOR\tACTUATOR\tTICKS\tFAILURES")
		for _, run := range runs {
			ended := "-"
			if run.EndedAt != nil {
				ended = run.EndedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\n", run.ID, run.StartedAt.Format("2006-01-02 15:04:05"),
				ended, run.SensorMode, run.ActuatorMode, run.Ticks, run.Failures)
		}
		tw.Flush()
	})
}
