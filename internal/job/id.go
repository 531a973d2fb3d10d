package job

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ID identifies a started job: "[<endpoint url>]-[<pid>]".
type ID string

// FormatID composes the ID of a process started through endpoint.
func FormatID(endpoint *url.URL, pid int) ID {
	return ID("[" + endpoint.String() + "]-[" + strconv.Itoa(pid) + "]")
}

// Parse splits the id into the endpoint url and the native process id.
func (id ID) Parse() (endpoint string, pid int, err error) {
	s := string(id)
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return "", 0, fmt.Errorf("malformed job id %q", s)
	}
	s = s[1 : len(s)-1]
	idx := strings.LastIndex(s, "]-[")
	if idx < 0 {
		return "", 0, fmt.Errorf("malformed job id %q", string(id))
	}
	endpoint = s[:idx]
	pid, err = strconv.Atoi(s[idx+3:])
	if err != nil {
		return "", 0, fmt.Errorf("malformed job id %q: native id: %w", string(id), err)
	}
	if endpoint == "" {
		return "", 0, fmt.Errorf("malformed job id %q: empty endpoint", string(id))
	}
	return endpoint, pid, nil
}

func (id ID) String() string {
	return string(id)
}
