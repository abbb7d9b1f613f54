package session

// AgentScript is the guest bundle the webview must load before the host can
// drive it. It installs the emission global the completion envelope targets,
// opens the eval stream, and evaluates incoming payloads. Served verbatim at
// /session/agent.js so apps can load it with a single script tag.
const AgentScript = `(() => {
  if (window.__MARIONETTE__) {
    return;
  }

  const base = document.currentScript && document.currentScript.src
    ? new URL(document.currentScript.src).origin
    : window.location.origin;

  const emit = (topic, payload) => {
    return fetch(base + '/session/emit', {
      method: 'POST',
      headers: { 'Content-Type': 'application/json' },
      body: JSON.stringify({ topic: topic, payload: payload }),
      keepalive: true,
    });
  };

  window.__MARIONETTE__ = { emit: emit };

  const source = new EventSource(base + '/session/stream');
  source.addEventListener('eval', (e) => {
    let payload;
    try {
      payload = JSON.parse(e.data);
    } catch (err) {
      return;
    }
    // The script carries its own completion envelope; errors inside it are
    // reported on its topic, not here.
    try {
      (0, eval)(payload.script);
    } catch (err) {
      emit(payload.topic, { error: err && err.message ? err.message : String(err) });
    }
  });
})();
`
