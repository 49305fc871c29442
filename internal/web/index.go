package web

// indexHTML is the status page. It polls nothing; everything arrives over
// /api/stream.
const indexHTML = `<!doctype html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>gnsslog</title>
<style>
body { font-family: monospace; margin: 1.5em; }
table { border-collapse: collapse; }
td { padding: 0.15em 1em 0.15em 0; }
td:first-child { color: #666; }
.void { color: #b00; }
pre { background: #f4f4f4; padding: 0.5em; }
</style>
</head>
<body>
<h1>gnsslog</h1>
<p id="conn">connecting...</p>
<table>
<tr><td>Timestamp (UTC)</td><td id="ts">-</td></tr>
<tr><td>Valid point</td><td id="valid">-</td></tr>
<tr><td>Latitude</td><td id="lat">-</td></tr>
<tr><td>Longitude</td><td id="lon">-</td></tr>
<tr><td>Altitude (m)</td><td id="alt">-</td></tr>
<tr><td>Heading (deg)</td><td id="hdg">-</td></tr>
<tr><td>Speed (km/h)</td><td id="spd">-</td></tr>
<tr><td>Satellite #</td><td id="sats">-</td></tr>
<tr><td>UTM</td><td id="utm">-</td></tr>
<tr><td>MGRS</td><td id="mgrs">-</td></tr>
</table>
<pre id="pkg"></pre>
<p><a href="/api/status">status</a> &middot; <a href="/api/logs?format=text">logs</a></p>
<script>
function show(id, v) { document.getElementById(id).textContent = (v === undefined || v === null) ? "-" : v; }
function connect() {
  var ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/api/stream");
  ws.onopen = function () { show("conn", "live"); };
  ws.onclose = function () { show("conn", "disconnected, retrying"); setTimeout(connect, 2000); };
  ws.onmessage = function (m) {
    var ev = JSON.parse(m.data), wp = ev.waypoint || {}, pos = ev.position || {};
    show("ts", wp.timestamp_utc);
    show("valid", wp.valid);
    document.getElementById("valid").className = wp.valid ? "" : "void";
    show("lat", wp.latitude_deg);
    show("lon", wp.longitude_deg);
    show("alt", wp.altitude_m);
    show("hdg", wp.heading_deg);
    show("spd", wp.speed_kmh);
    show("sats", wp.satellite_count);
    show("utm", pos.utm);
    show("mgrs", pos.mgrs);
    show("pkg", (ev.package || []).join("\n"));
  };
}
connect();
</script>
</body>
</html>
`
