// Package router decodes raw streamer frames and routes the quote records
// they carry into the snapshot store.
//
// A frame carries one of three payloads:
//
//	{"data":     [{"service":"LEVELONE_EQUITIES","command":"SUBS","content":[{"key":"AAPL","1":150.25}]}]}
//	{"notify":   [{"heartbeat":"1718000000000"}]}
//	{"response": [{"service":"ADMIN","command":"LOGIN","content":{"code":0,"msg":"..."}}]}
//
// Only SUBS data items become update events. Heartbeats and command
// responses are counted. Frames that fail to decode are logged and dropped.
package router
