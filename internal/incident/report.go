package incident

import (
	"fmt"
	"strings"

	"github.com/linnemanlabs/warden/internal/logcorr"
)

// Article subjects written by the enricher. Wire-facing strings stay in
// Spanish to match what agents see in the ticket system.
const (
	subjectWithLogs = "Diagnóstico de Incidente (Error Log)"
	subjectNoLogs   = "Diagnóstico de Incidente (Sin logs encontrados)"

	processedByHeader = "[Procesado por: Error Log Monitor]"
)

// maxReportFindings caps how many correlated errors the report details;
// the rest are summarized in a single trailing line.
const maxReportFindings = 5

var reportRule = strings.Repeat("═", 55)

// noLogsNextSteps is the fixed recommendation block closing the no-logs
// fallback report.
var noLogsNextSteps = strings.Join([]string{
	"- Verificar manualmente los logs del servidor.",
	"- Contactar al cliente para obtener más detalles sobre el problema.",
	"- Escalar a nivel 2 si el problema persiste.",
}, "\n")

// formatReport renders the full enrichment report for an incident with
// correlated log findings.
func formatReport(rec *Record, res *logcorr.Result) string {
	var b strings.Builder

	b.WriteString(reportRule + "\n")
	b.WriteString("DIAGNÓSTICO DE INCIDENTE (ERROR LOG)\n")
	b.WriteString(reportRule + "\n\n")

	writeEntityBlock(&b, rec)
	fmt.Fprintf(&b, "Logs correlacionados: %d\n\n", res.LogsFound)

	b.WriteString("ERRORES DETECTADOS\n")
	b.WriteString(reportRule + "\n")

	shown := res.Findings
	if len(shown) > maxReportFindings {
		shown = shown[:maxReportFindings]
	}
	for i, f := range shown {
		fmt.Fprintf(&b, "\n%d. [%s] %s\n", i+1, strings.ToUpper(f.Diagnosis.Severity), f.Diagnosis.ErrorType)
		if f.Log.Message != "" {
			fmt.Fprintf(&b, "   Log: %s\n", f.Log.Message)
		}
		if f.Diagnosis.Summary != "" {
			fmt.Fprintf(&b, "   Resumen: %s\n", f.Diagnosis.Summary)
		}
		if f.Diagnosis.Recommendation != "" {
			fmt.Fprintf(&b, "   Recomendación: %s\n", f.Diagnosis.Recommendation)
		}
	}
	if extra := len(res.Findings) - maxReportFindings; extra > 0 {
		fmt.Fprintf(&b, "\n... y %d errores adicionales.\n", extra)
	}

	b.WriteString("\nRESUMEN Y PRÓXIMOS PASOS\n")
	b.WriteString(reportRule + "\n")
	if res.Summary != "" {
		b.WriteString(res.Summary + "\n")
	}

	return b.String()
}

// formatNoLogs renders the fallback report when no logs could be
// correlated (or the correlation service was unavailable).
func formatNoLogs(rec *Record) string {
	var b strings.Builder

	b.WriteString(reportRule + "\n")
	b.WriteString("DIAGNÓSTICO DE INCIDENTE (SIN LOGS ENCONTRADOS)\n")
	b.WriteString(reportRule + "\n\n")

	writeEntityBlock(&b, rec)
	b.WriteString("No se encontraron logs correlacionados con este incidente.\n")

	if rec.InitialDiagnosis != "" {
		b.WriteString("\nDIAGNÓSTICO INICIAL\n")
		b.WriteString(reportRule + "\n")
		b.WriteString(rec.InitialDiagnosis + "\n")
	}

	b.WriteString("\nPRÓXIMOS PASOS\n")
	b.WriteString(reportRule + "\n")
	b.WriteString(noLogsNextSteps + "\n")

	return b.String()
}

func writeEntityBlock(b *strings.Builder, rec *Record) {
	fmt.Fprintf(b, "Entidad: %s\n", rec.Entity)
	if rec.Contact != "" {
		line := "Contacto: " + rec.Contact
		if rec.Email != "" {
			line += " <" + rec.Email + ">"
		}
		b.WriteString(line + "\n")
	}
	if rec.Problem != "" {
		fmt.Fprintf(b, "Problema: %s\n", rec.Problem)
	}
}
