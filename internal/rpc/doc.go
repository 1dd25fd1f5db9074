// Package rpc exposes the conversation over gRPC as chatrelay.v1.ChatRelay.
//
// Messages travel as JSON (content subtype "json", i.e.
// application/grpc+json) rather than protobuf, so the service is declared by
// hand with a grpc.ServiceDesc instead of generated stubs.
//
//	rpc ListMessages(Empty) returns (ListMessagesResponse)
//	rpc GetMessage(GetMessageRequest) returns (Message)      // NotFound when absent
//	rpc SendMessage(SendMessageRequest) returns (Message)
//	rpc ClearMessages(Empty) returns (ClearMessagesResponse)
//	rpc MessageAdded(Empty) returns (stream Message)
//
// Client speaks the same codec and backs the CLI's watch command.
package rpc
