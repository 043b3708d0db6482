package server

import (
	"context"
	"fmt"
	"reflect"
	"strings"
)

type methodType struct {
	name   string
	method reflect.Method
}

type service struct {
	namespace string
	rcvr      reflect.Value
	typ       reflect.Type
	method    map[string]*methodType
}

// newService 创建 service 并扫描所有合法方法
func newService(namespace string, rcvr any) (*service, error) {
	typ := reflect.TypeOf(rcvr)
	if typ == nil || typ.Kind() != reflect.Ptr {
		return nil, fmt.Errorf("rpc: rcvr must be a pointer, got %v", typ)
	}
	if typ.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("rpc: rcvr must point to a struct, got %s", typ.Elem().Kind())
	}

	svc := &service{
		namespace: namespace,
		rcvr:      reflect.ValueOf(rcvr),
		typ:       typ,
		method:    make(map[string]*methodType),
	}
	svc.registerMethods()

	if len(svc.method) == 0 {
		return nil, fmt.Errorf("rpc: %s has no method of type func(context.Context, []any) (any, error)", typ.Elem().Name())
	}
	return svc, nil
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	paramsType  = reflect.TypeOf([]any(nil))
	anyType     = reflect.TypeOf((*any)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// registerMethods 扫描导出方法，过滤出符合 RPC 签名的:
//
//	func (r *T) GetBalance(ctx context.Context, params []any) (any, error)
//
// 方法名转小写作为 RPC 名字，有 namespace 时加前缀: "wallet.getbalance"
func (s *service) registerMethods() {
	for i := 0; i < s.typ.NumMethod(); i++ {
		method := s.typ.Method(i)
		mt := method.Type
		if mt.NumIn() != 3 || mt.NumOut() != 2 ||
			mt.In(1) != contextType || mt.In(2) != paramsType ||
			mt.Out(0) != anyType || mt.Out(1) != errorType {
			continue
		}

		name := strings.ToLower(method.Name)
		if s.namespace != "" {
			name = s.namespace + "." + name
		}
		s.method[name] = &methodType{name: name, method: method}
	}
}

// handler binds a method to the receiver.
func (s *service) handler(mType *methodType) HandlerFunc {
	return func(ctx context.Context, params []any) (any, error) {
		in := [3]reflect.Value{s.rcvr, reflect.ValueOf(ctx), reflect.ValueOf(params)}
		results := mType.method.Func.Call(in[:])
		var err error
		if !results[1].IsNil() {
			err = results[1].Interface().(error)
		}
		return results[0].Interface(), err
	}
}
