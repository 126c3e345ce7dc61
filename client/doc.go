// Package client implements the device-side endpoint of the sensor datagram
// protocol: the per-session handshake/transport state machine and the
// send-and-wait reliability loop used to survive a lossy channel.
//
// A Session moves through the states None -> Handshake -> Transport; any
// violated precondition or cryptographic failure moves it to Closed, which
// is terminal. The session itself is pure with respect to I/O: its methods
// consume and produce whole datagrams, and SendAndWait pushes them over a
// connected UDP socket with bounded retries.
//
// Typical flow:
//
//	session := client.NewSession(deviceID)
//	req, _ := session.InitiateHandshake()
//	resp, _ := client.SendAndWait(conn, req, 1, time.Second, 5)
//	_ = session.ReceiveHandshake(resp)
//	msg, _ := session.TemperatureMessage(25.0)
//	ack, _ := client.SendAndWait(conn, msg, session.SendSequence(), time.Second, 5)
//	_ = session.ReceiveAck(ack)
package client
