package rpc

import (
	"reflect"
	"strings"
	"testing"

	"connectrpc.com/grpcreflect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/mcdev12/fantasta/go/internal/models"
)

func TestDescriptors_ServiceHasEveryProcedure(t *testing.T) {
	files, err := Descriptors()
	require.NoError(t, err)

	d, err := files.FindDescriptorByName(protoreflect.FullName(ServiceName))
	require.NoError(t, err)
	service, ok := d.(protoreflect.ServiceDescriptor)
	require.True(t, ok, "%s is not a service", ServiceName)

	for _, name := range commandProcedures {
		m := service.Methods().ByName(protoreflect.Name(name))
		require.NotNil(t, m, "missing method %s", name)
		assert.Equal(t, protoreflect.FullName(protoPackage+".CommandRequest"), m.Input().FullName())
		assert.Equal(t, protoreflect.FullName(protoPackage+".CommandResponse"), m.Output().FullName())
	}
	snapshot := service.Methods().ByName("GetSnapshot")
	require.NotNil(t, snapshot)
	assert.Equal(t, GetSnapshotProcedure, "/"+string(service.FullName())+"/"+string(snapshot.Name()))
	assert.Equal(t, len(commandProcedures)+1, service.Methods().Len())

	fd, err := files.FindFileByPath(ProtoFile)
	require.NoError(t, err)
	assert.Equal(t, protoreflect.FullName(protoPackage), fd.Package())
}

// jsonNames returns the json tag names of the struct fields of v.
func jsonNames(v any) []string {
	var out []string
	typ := reflect.TypeOf(v)
	for i := 0; i < typ.NumField(); i++ {
		tag := typ.Field(i).Tag.Get("json")
		if name, _, _ := strings.Cut(tag, ","); name != "" && name != "-" {
			out = append(out, name)
		}
	}
	return out
}

func TestDescriptors_JSONNamesMatchWireStructs(t *testing.T) {
	files, err := Descriptors()
	require.NoError(t, err)

	tests := []struct {
		message string
		value   any
	}{
		{"Lot", models.Lot{}},
		{"CommandRequest", CommandRequest{}},
		{"CommandResponse", CommandResponse{}},
		{"SnapshotResponse", SnapshotResponse{}},
		{"Empty", Empty{}},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			d, err := files.FindDescriptorByName(protoreflect.FullName(protoPackage + "." + tt.message))
			require.NoError(t, err)
			msg, ok := d.(protoreflect.MessageDescriptor)
			require.True(t, ok)

			var names []string
			for i := 0; i < msg.Fields().Len(); i++ {
				names = append(names, msg.Fields().Get(i).JSONName())
			}
			assert.ElementsMatch(t, jsonNames(tt.value), names)
		})
	}
}

func TestNewReflector(t *testing.T) {
	reflector, err := NewReflector()
	require.NoError(t, err)

	path, handler := grpcreflect.NewHandlerV1(reflector)
	assert.Equal(t, "/grpc.reflection.v1.ServerReflection/", path)
	assert.NotNil(t, handler)
}
