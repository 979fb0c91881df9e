package httpconnect

import (
	"bufio"
	"fmt"
	"strings"
)

// headerField preserves the exact casing a client or upstream sent, since
// §4.11's invariant requires header casing survive end to end; net/http's
// canonicalized textproto.MIMEHeader would lose it.
type headerField struct {
	Name  string
	Value string
}

const maxHeaderLines = 200

// readRequestLine parses "METHOD SP target SP proto CRLF".
func readRequestLine(r *bufio.Reader) (method, target, proto string, err error) {
	line, err := readLine(r)
	if err != nil {
		return "", "", "", err
	}
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("httpconnect: malformed request line %q", line)
	}
	return parts[0], parts[1], parts[2], nil
}

// readStatusLine parses "proto SP code SP reason CRLF" from an upstream
// response.
func readStatusLine(r *bufio.Reader) (proto string, code int, reason string, err error) {
	line, err := readLine(r)
	if err != nil {
		return "", 0, "", err
	}
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return "", 0, "", fmt.Errorf("httpconnect: malformed status line %q", line)
	}
	n, convErr := fmt.Sscanf(parts[1], "%d", &code)
	if convErr != nil || n != 1 {
		return "", 0, "", fmt.Errorf("httpconnect: malformed status code %q", parts[1])
	}
	reason = ""
	if len(parts) == 3 {
		reason = parts[2]
	}
	return parts[0], code, reason, nil
}

// readHeaders reads header lines verbatim until the blank line that ends
// the header block, keeping each field's original name casing.
func readHeaders(r *bufio.Reader) ([]headerField, error) {
	var fields []headerField
	for {
		if len(fields) > maxHeaderLines {
			return nil, fmt.Errorf("httpconnect: too many header lines")
		}
		line, err := readLine(r)
		if err != nil {
			return nil, err
		}
		if line == "" {
			return fields, nil
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			return nil, fmt.Errorf("httpconnect: malformed header line %q", line)
		}
		name := line[:idx]
		value := strings.TrimSpace(line[idx+1:])
		fields = append(fields, headerField{Name: name, Value: value})
	}
}

// readLine reads one CRLF- or LF-terminated line, stripping the terminator.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, nil
}

func headerGet(fields []headerField, name string) (string, bool) {
	for _, f := range fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value, true
		}
	}
	return "", false
}

// hopByHopNames is the fixed set §4.11 names plus whatever the request's own
// Connection header nominates.
var hopByHopNames = []string{
	"connection", "keep-alive", "proxy-authenticate", "proxy-authorization",
	"te", "trailers", "transfer-encoding", "upgrade",
}

func stripHopByHop(fields []headerField) []headerField {
	drop := map[string]bool{}
	for _, n := range hopByHopNames {
		drop[n] = true
	}
	if conn, ok := headerGet(fields, "Connection"); ok {
		for _, tok := range strings.Split(conn, ",") {
			drop[strings.ToLower(strings.TrimSpace(tok))] = true
		}
	}
	out := make([]headerField, 0, len(fields))
	for _, f := range fields {
		if drop[strings.ToLower(f.Name)] {
			continue
		}
		out = append(out, f)
	}
	return out
}

func writeStatusLine(w *bufio.Writer, proto string, code int, reason string) error {
	_, err := fmt.Fprintf(w, "%s %d %s\r\n", proto, code, reason)
	return err
}

func writeHeaders(w *bufio.Writer, fields []headerField) error {
	for _, f := range fields {
		if _, err := fmt.Fprintf(w, "%s: %s\r\n", f.Name, f.Value); err != nil {
			return err
		}
	}
	_, err := w.WriteString("\r\n")
	return err
}
