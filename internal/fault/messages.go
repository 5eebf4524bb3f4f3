package fault

// messages.go maps technical error text to user-facing guidance.
//
// Codes are grouped by category so a user can quote one when asking for help:
//
//	ES001-ES099   cluster connectivity and bulk API errors
//	CSV001-CSV099 input file errors
//	CFG001-CFG099 option errors
//	RUN001-RUN099 run lifecycle
//	ERR000        fallback
//
// Patterns are matched case-insensitively with strings.Contains. The first
// match wins, so specific patterns come before general ones.

import (
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Connectivity
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to the cluster",
			Action:  "Check the --elastic address or --cloud id and that the cluster is running",
			Code:    "ES001",
		},
	},
	{
		pattern: "no such host",
		msg: UserMessage{
			Message: "The cluster host name could not be resolved",
			Action:  "Check the --elastic address or --cloud id",
			Code:    "ES001",
		},
	},
	{
		pattern: "cannot create client",
		msg: UserMessage{
			Message: "The cluster client could not be created",
			Action:  "Check the --elastic address format (http://host:9200) or the --cloud id",
			Code:    "ES001",
		},
	},

	// Authentication and authorization
	{
		pattern: "status 401",
		msg: UserMessage{
			Message: "The cluster rejected the credentials",
			Action:  "Check --user/--password or --key",
			Code:    "ES002",
		},
	},
	{
		pattern: "security_exception",
		msg: UserMessage{
			Message: "The cluster rejected the credentials",
			Action:  "Check --user/--password or --key",
			Code:    "ES002",
		},
	},
	{
		pattern: "status 403",
		msg: UserMessage{
			Message: "The credentials are not allowed to write to this index",
			Action:  "Grant the index and create_doc privileges or use another --index",
			Code:    "ES003",
		},
	},

	// Index and request errors
	{
		pattern: "invalid_index_name_exception",
		msg: UserMessage{
			Message: "The index name is not valid",
			Action:  "Use a lower-case --index without spaces or special characters",
			Code:    "ES004",
		},
	},
	{
		pattern: "status 413",
		msg: UserMessage{
			Message: "The bulk request is too large",
			Action:  "Lower --buffer",
			Code:    "ES005",
		},
	},
	{
		pattern: "status 429",
		msg: UserMessage{
			Message: "The cluster is overloaded",
			Action:  "Lower --buffer or try again later",
			Code:    "ES006",
		},
	},
	{
		pattern: "bulk response",
		msg: UserMessage{
			Message: "The cluster sent a bulk response that could not be understood",
			Action:  "Check that --elastic points at an Elasticsearch cluster",
			Code:    "ES007",
		},
	},

	// Input
	{
		pattern: "delimiter",
		msg: UserMessage{
			Message: "The header line does not contain the delimiter",
			Action:  "Pass the file's delimiter with --delimiter",
			Code:    "CSV001",
		},
	},
	{
		pattern: "no such file",
		msg: UserMessage{
			Message: "The input file does not exist",
			Action:  "Check the --file path",
			Code:    "CSV002",
		},
	},
	{
		pattern: "encoding",
		msg: UserMessage{
			Message: "The input file encoding is not supported",
			Action:  "Use an encoding label such as utf-8, windows-1252 or shift_jis",
			Code:    "CSV003",
		},
	},

	// Lifecycle
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "The upload was cancelled",
			Action:  "Batches already sent stay in the index; run again to upload the rest",
			Code:    "RUN001",
		},
	},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Run again with --log-level debug for details",
	Code:    "ERR000",
}

// Explain returns user guidance for err. Configuration errors keep their own
// text because it already names the offending option.
func Explain(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}
	if KindOf(err) == KindConfig {
		return UserMessage{
			Message: err.Error(),
			Action:  "Fix the option and run again",
			Code:    "CFG001",
		}
	}

	lower := strings.ToLower(err.Error())
	for _, p := range errorPatterns {
		if strings.Contains(lower, p.pattern) {
			return p.msg
		}
	}
	return defaultMessage
}
