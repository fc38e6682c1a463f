package source

import (
	"fmt"
	"strings"
	"time"
)

// eventLogFilter builds the Get-WinEvent FilterHashtable body for one
// channel. Time bounds go into the filter so filtering happens before
// serialization.
func eventLogFilter(channel string, pred Predicate) string {
	filter := fmt.Sprintf("LogName='%s'", psQuote(channel))
	if !pred.From.IsZero() {
		filter += fmt.Sprintf("; StartTime=[datetime]'%s'", pred.From.UTC().Format(time.RFC3339Nano))
	}
	if !pred.To.IsZero() {
		filter += fmt.Sprintf("; EndTime=[datetime]'%s'", pred.To.UTC().Format(time.RFC3339Nano))
	}
	return filter
}

// eventLogScript renders the PowerShell that serializes matching events
// as one compact JSON payload per line. maxEvents (when positive) caps
// the collection inside PowerShell, keeping memory bounded even when a
// channel holds far more records than the per-channel cap.
func eventLogScript(filter string, maxEvents int) string {
	limit := ""
	if maxEvents > 0 {
		limit = fmt.Sprintf(" -MaxEvents %d", maxEvents)
	}
	return fmt.Sprintf(`
Get-WinEvent -FilterHashtable @{%s} -Oldest%s -ErrorAction Stop |
 ForEach-Object {
   $data = @($_.Properties | ForEach-Object { @{name=""; value=[string]$_.Value} })
   [pscustomobject]@{
     channel      = $_.LogName
     event_id     = $_.Id
     level        = $_.Level
     provider     = $_.ProviderName
     timestamp    = $_.TimeCreated.ToUniversalTime().ToString("o")
     computer     = $_.MachineName
     message      = $_.Message
     process_id   = $_.ProcessId
     thread_id    = $_.ThreadId
     task         = $_.Task
     opcode       = $_.Opcode
     keywords     = ("0x{0:x}" -f $_.Keywords)
     activity_id  = [string]$_.ActivityId
     event_data   = $data
   } | ConvertTo-Json -Compress -Depth 4
 }
`, filter, limit)
}

func psQuote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
