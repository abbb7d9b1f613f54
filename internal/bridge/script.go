package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/mattjoyce/marionette/internal/protocol"
)

// BuildEffectiveScript produces the script actually evaluated in the remote
// context. With no args the request script passes through verbatim; otherwise
// the script is wrapped so a local __marionette_args binding carries the
// parsed argument list.
func BuildEffectiveScript(req protocol.ExecuteRequest) (string, error) {
	if len(req.Args) == 0 {
		return req.Script, nil
	}

	argsJSON, err := json.Marshal(req.Args)
	if err != nil {
		return "", protocol.SerializationError("failed to serialize args: %v", err)
	}

	return fmt.Sprintf(
		"(function() { const __marionette_args = %s; return (%s); })()",
		argsJSON, req.Script,
	), nil
}

// WrapCompletion wraps the effective script in the completion envelope: the
// script is evaluated, its resolved value or thrown failure is captured and
// stringified, and the outcome is reported on topic. The envelope prefers the
// agent's installed global but falls back to posting the emit endpoint
// directly, because the agent's initialization order is not guaranteed.
func WrapCompletion(script, topic string) string {
	return fmt.Sprintf(`
(async () => {
    const __emit = (body) => {
        if (window.__MARIONETTE__ && window.__MARIONETTE__.emit) {
            return window.__MARIONETTE__.emit(%[1]q, body);
        }
        return fetch('/session/emit', {
            method: 'POST',
            headers: { 'Content-Type': 'application/json' },
            body: JSON.stringify({ topic: %[1]q, payload: body }),
            keepalive: true,
        });
    };
    try {
        const result = %[2]s;
        // JSON.stringify(undefined) yields undefined, which would drop both
        // fields from the report; coerce to null so the waiter always settles.
        const jsonResult = JSON.stringify(await result) ?? 'null';
        await __emit({ result: jsonResult });
    } catch (error) {
        const errorMsg = error && error.message ? error.message : String(error);
        await __emit({ error: errorMsg });
    }
})()
`, topic, script)
}
