package rpc

import (
	"fmt"
	"sort"

	"connectrpc.com/grpcreflect"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ProtoFile is the path of the AuctionService contract under proto/.
const ProtoFile = "fantasta/auction/v1/auction.proto"

const protoPackage = "fantasta.auction.v1"

// Descriptors returns a registry holding the AuctionService contract. It
// mirrors proto/fantasta/auction/v1/auction.proto; the JSON names of every
// field match the structs in messages.go.
func Descriptors() (*protoregistry.Files, error) {
	files := new(protoregistry.Files)
	if err := files.RegisterFile(structpb.File_google_protobuf_struct_proto); err != nil {
		return nil, fmt.Errorf("register struct.proto: %w", err)
	}

	fd, err := protodesc.NewFile(auctionFile(), files)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", ProtoFile, err)
	}
	if err := files.RegisterFile(fd); err != nil {
		return nil, fmt.Errorf("register %s: %w", ProtoFile, err)
	}
	return files, nil
}

// NewReflector serves the AuctionService descriptors over gRPC reflection.
func NewReflector() (*grpcreflect.Reflector, error) {
	files, err := Descriptors()
	if err != nil {
		return nil, err
	}
	return grpcreflect.NewReflector(
		serviceNames{ServiceName},
		grpcreflect.WithDescriptorResolver(files),
	), nil
}

type serviceNames []string

func (n serviceNames) Names() []string { return n }

func auctionFile() *descriptorpb.FileDescriptorProto {
	lot := message("Lot",
		field("id", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
		field("name", 2, descriptorpb.FieldDescriptorProto_TYPE_STRING),
		field("category", 3, descriptorpb.FieldDescriptorProto_TYPE_STRING),
		field("group", 4, descriptorpb.FieldDescriptorProto_TYPE_STRING),
		field("base_value", 5, descriptorpb.FieldDescriptorProto_TYPE_INT32),
	)
	request := message("CommandRequest",
		field("participant_id", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
		field("name", 2, descriptorpb.FieldDescriptorProto_TYPE_STRING),
		field("team_name", 3, descriptorpb.FieldDescriptorProto_TYPE_STRING),
		field("picture_ref", 4, descriptorpb.FieldDescriptorProto_TYPE_STRING),
		field("amount", 5, descriptorpb.FieldDescriptorProto_TYPE_INT32),
		field("initial_credits", 6, descriptorpb.FieldDescriptorProto_TYPE_INT32),
		messageField("lot", 7, "Lot"),
		repeated(messageField("lots", 8, "Lot")),
	)
	response := message("CommandResponse",
		field("accepted", 1, descriptorpb.FieldDescriptorProto_TYPE_BOOL),
		field("reason", 2, descriptorpb.FieldDescriptorProto_TYPE_STRING),
		field("code", 3, descriptorpb.FieldDescriptorProto_TYPE_STRING),
		field("version", 4, descriptorpb.FieldDescriptorProto_TYPE_UINT64),
		messageField("lot", 5, "Lot"),
		structField("participant", 6),
	)
	snapshot := message("SnapshotResponse",
		field("instance_id", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
		field("version", 2, descriptorpb.FieldDescriptorProto_TYPE_UINT64),
		structField("snapshot", 3),
	)

	names := make([]string, 0, len(commandProcedures))
	for _, name := range commandProcedures {
		names = append(names, name)
	}
	sort.Strings(names)

	service := &descriptorpb.ServiceDescriptorProto{Name: proto.String("AuctionService")}
	for _, name := range names {
		service.Method = append(service.Method, method(name, "CommandRequest", "CommandResponse"))
	}
	service.Method = append(service.Method, method("GetSnapshot", "Empty", "SnapshotResponse"))

	return &descriptorpb.FileDescriptorProto{
		Name:        proto.String(ProtoFile),
		Package:     proto.String(protoPackage),
		Syntax:      proto.String("proto3"),
		Dependency:  []string{structpb.File_google_protobuf_struct_proto.Path()},
		MessageType: []*descriptorpb.DescriptorProto{lot, request, response, message("Empty"), snapshot},
		Service:     []*descriptorpb.ServiceDescriptorProto{service},
		Options: &descriptorpb.FileOptions{
			GoPackage: proto.String("github.com/mcdev12/fantasta/go/internal/auction/rpc"),
		},
	}
}

func message(name string, fields ...*descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{Name: proto.String(name), Field: fields}
}

func field(name string, number int32, typ descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(number),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   typ.Enum(),
	}
}

func messageField(name string, number int32, typeName string) *descriptorpb.FieldDescriptorProto {
	f := field(name, number, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE)
	f.TypeName = proto.String("." + protoPackage + "." + typeName)
	return f
}

// structField is a free-form JSON object, used for the engine's nested types.
func structField(name string, number int32) *descriptorpb.FieldDescriptorProto {
	f := field(name, number, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE)
	f.TypeName = proto.String(".google.protobuf.Struct")
	return f
}

func repeated(f *descriptorpb.FieldDescriptorProto) *descriptorpb.FieldDescriptorProto {
	f.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
	return f
}

func method(name, input, output string) *descriptorpb.MethodDescriptorProto {
	return &descriptorpb.MethodDescriptorProto{
		Name:       proto.String(name),
		InputType:  proto.String("." + protoPackage + "." + input),
		OutputType: proto.String("." + protoPackage + "." + output),
	}
}
