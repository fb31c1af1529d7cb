package server

// clientScript connects to the reload websocket and reloads the page on a
// full-reload message, reconnecting with backoff when the server restarts.
const clientScript = `(function () {
  var proto = location.protocol === "https:" ? "wss:" : "ws:";
  var url = proto + "//" + location.host + "/__svgrender/ws";
  var delay = 500;

  function connect() {
    var ws = new WebSocket(url);
    ws.onopen = function () {
      delay = 500;
    };
    ws.onmessage = function (event) {
      var msg;
      try {
        msg = JSON.parse(event.data);
      } catch (e) {
        return;
      }
      if (msg.type === "full-reload") {
        location.reload();
      }
    };
    ws.onclose = function () {
      setTimeout(connect, delay);
      delay = Math.min(delay * 2, 10000);
    };
  }

  connect();
})();
`
