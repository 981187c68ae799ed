package hnap

import (
	"fmt"
	"net/http"
)

// Namespace is the URI prefix of every HNAP operation.
const Namespace = "http://purenetworks.com/HNAP1/"

// BatchOperation is the operation name that wraps several commands in one
// request.
const BatchOperation = "GetMultipleHNAPs"

// resultOK is the only accepted value of an {Operation}Result field.
const resultOK = "OK"

// Args carries the named arguments a payload builder may read.
type Args map[string]string

// PayloadFunc builds the JSON payload of a command from its arguments.
type PayloadFunc func(args Args) any

// Command describes one HNAP operation. Commands are immutable values and
// may be shared freely between devices.
type Command struct {
	Operation string
	ReadOnly  bool
	Method    string
	payload   PayloadFunc
	subs      []Command
}

// NewCommand returns a read-only POST command with an empty payload, which
// is what every Get* operation expects.
func NewCommand(operation string) Command {
	return Command{Operation: operation, ReadOnly: true, Method: http.MethodPost}
}

// NewMutatingCommand returns a POST command that changes device state.
func NewMutatingCommand(operation string, payload PayloadFunc) Command {
	return Command{Operation: operation, Method: http.MethodPost, payload: payload}
}

// Batch wraps commands into a single GetMultipleHNAPs request. The batch
// is read-only only if every sub-command is.
func Batch(commands ...Command) Command {
	readOnly := true
	for _, c := range commands {
		readOnly = readOnly && c.ReadOnly
	}
	subs := make([]Command, len(commands))
	copy(subs, commands)
	return Command{
		Operation: BatchOperation,
		ReadOnly:  readOnly,
		Method:    http.MethodPost,
		subs:      subs,
	}
}

// LoginRequestCommand asks the device for a login challenge.
func LoginRequestCommand() Command {
	return Command{
		Operation: "Login",
		Method:    http.MethodPost,
		payload: func(args Args) any {
			return map[string]string{
				"Action":        "request",
				"Captcha":       "",
				"PrivateLogin":  "LoginPassword",
				"Username":      args["username"],
				"LoginPassword": "",
			}
		},
	}
}

// LoginCommand answers the challenge with the encoded password.
func LoginCommand() Command {
	return Command{
		Operation: "Login",
		Method:    http.MethodPost,
		payload: func(args Args) any {
			return map[string]string{
				"Action":        "login",
				"Captcha":       "",
				"PrivateLogin":  "LoginPassword",
				"Username":      args["username"],
				"LoginPassword": args["encoded_password"],
			}
		},
	}
}

// IsBatch reports whether c wraps sub-commands.
func (c Command) IsBatch() bool { return len(c.subs) > 0 }

// SubCommands returns a copy of the wrapped commands.
func (c Command) SubCommands() []Command {
	out := make([]Command, len(c.subs))
	copy(out, c.subs)
	return out
}

// BuildPayload returns the value placed under the operation key of the
// request body.
func (c Command) BuildPayload(args Args) any {
	if c.IsBatch() {
		payload := make(map[string]any, len(c.subs))
		for _, sub := range c.subs {
			payload[sub.Operation] = sub.BuildPayload(args)
		}
		return payload
	}
	if c.payload == nil {
		return ""
	}
	return c.payload(args)
}

// SOAPAction returns the quoted operation URI sent in the SOAPAction header.
func (c Command) SOAPAction() string {
	return `"` + Namespace + c.Operation + `"`
}

func (c Command) String() string {
	if c.IsBatch() {
		ops := make([]string, len(c.subs))
		for i, sub := range c.subs {
			ops[i] = sub.Operation
		}
		return fmt.Sprintf("%s%v", c.Operation, ops)
	}
	return c.Operation
}

// Validate checks the response envelope of c (and of every sub-command for
// a batch) and returns the unwrapped {Operation}Response object.
func (c Command) Validate(body Response) (Response, error) {
	inner, err := validateEnvelope(body, c.Operation)
	if err != nil {
		return nil, err
	}
	for _, sub := range c.subs {
		if _, err := validateEnvelope(inner, sub.Operation); err != nil {
			return nil, err
		}
	}
	return inner, nil
}

func validateEnvelope(body Response, operation string) (Response, error) {
	inner := body.Section(operation + "Response")
	if inner == nil {
		return nil, &ProtocolError{Operation: operation, Err: ErrMissingEnvelope}
	}
	if result := inner.String(operation + "Result"); result != resultOK {
		return nil, &ProtocolError{Operation: operation, Result: result, Err: ErrResultNotOK}
	}
	return inner, nil
}
