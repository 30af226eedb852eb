package coap

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Result 资源处理一次请求的结果
type Result struct {
	Code    Code
	Format  MediaType
	Payload []byte
}

// Resource 可寻址的服务端资源.
//
// 资源通过实现Getter, Putter, Deleter声明其支持的方法, 未实现的方法由
// Registry回复MethodNotAllowed.
type Resource interface {
	Path() string
	Title() string
}

// Getter 支持GET的资源
type Getter interface {
	Get() Result
}

// Putter 支持PUT的资源
type Putter interface {
	Put(payload []byte) Result
}

// Deleter 支持DELETE的资源
type Deleter interface {
	Delete() Result
}

// Methods returns the request methods r supports.
func Methods(r Resource) []Code {
	var methods []Code
	if _, ok := r.(Getter); ok {
		methods = append(methods, GET)
	}
	if _, ok := r.(Putter); ok {
		methods = append(methods, PUT)
	}
	if _, ok := r.(Deleter); ok {
		methods = append(methods, DELETE)
	}
	return methods
}

const wellKnownCore = ".well-known/core"

type entry struct {
	res     Resource
	deleted bool
}

// Registry 路径到资源的映射, 实现了Handler接口.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewRegistry 创建资源注册表, 注册表自带/.well-known/core资源发现.
func NewRegistry() *Registry {
	r := &Registry{entries: make(map[string]*entry)}
	r.entries[wellKnownCore] = &entry{res: discovery{r}}
	return r
}

// Register 注册资源, 路径重复时返回ErrDuplicatePath.
//
// 被删除的资源路径仍然保留, 不能重新注册.
func (r *Registry) Register(res Resource) error {
	path := cleanPath(res.Path())
	if path == "" {
		return errors.New("empty resource path")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[path]; ok {
		return errors.Wrapf(ErrDuplicatePath, "%q", path)
	}
	r.entries[path] = &entry{res: res}
	return nil
}

// Lookup returns the live resource registered at path.
func (r *Registry) Lookup(path string) (Resource, bool) {
	e, ok := r.lookup(cleanPath(path))
	if !ok {
		return nil, false
	}
	return e.res, true
}

// Resources 返回未删除的资源, 按路径排序, 不含资源发现本身.
func (r *Registry) Resources() []Resource {
	r.mu.RLock()
	paths := make([]string, 0, len(r.entries))
	for path, e := range r.entries {
		if e.deleted || path == wellKnownCore {
			continue
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)
	resources := make([]Resource, 0, len(paths))
	for _, path := range paths {
		resources = append(resources, r.entries[path].res)
	}
	r.mu.RUnlock()
	return resources
}

// Dispatch 将请求分派给path对应资源的处理方法.
//
// 资源不存在或已删除时返回ErrNotFound, 资源不支持该方法时返回
// ErrMethodNotAllowed. 处理方法中的panic被恢复为ErrInternal.
func (r *Registry) Dispatch(path string, method Code, payload []byte) (res Result, err error) {
	path = cleanPath(path)
	e, ok := r.lookup(path)
	if !ok {
		return Result{Code: NotFound}, errors.Wrapf(ErrNotFound, "%q", path)
	}

	defer func() {
		if p := recover(); p != nil {
			res = Result{Code: InternalServerError}
			err = errors.Wrapf(ErrInternal, "%s %q: %v", method, path, p)
		}
	}()

	switch method {
	case GET:
		if g, ok := e.res.(Getter); ok {
			return g.Get(), nil
		}
	case PUT:
		if p, ok := e.res.(Putter); ok {
			return p.Put(payload), nil
		}
	case DELETE:
		if d, ok := e.res.(Deleter); ok {
			res = d.Delete()
			if res.Code == Deleted {
				r.markDeleted(path, e)
			}
			return res, nil
		}
	}
	return Result{Code: MethodNotAllowed}, errors.Wrapf(ErrMethodNotAllowed, "%s %q", method, path)
}

func (r *Registry) ServeCOAP(w ResponseWriter, req *Request) {
	res, err := r.Dispatch(req.Path(), req.Method, req.Payload)
	if err != nil {
		if Verbose >= 1 {
			log.Printf("dispatch %s %q from %v: %v", req.Method, req.Path(), req.RemoteAddr, err)
		}
		w.WriteCode(errorCode(err))
		return
	}
	w.WriteCode(res.Code)
	if len(res.Payload) > 0 {
		w.SetContentFormat(res.Format)
		w.Write(res.Payload)
	}
}

func (r *Registry) lookup(path string) (*entry, bool) {
	r.mu.RLock()
	e, ok := r.entries[path]
	r.mu.RUnlock()
	if !ok || e.deleted {
		return nil, false
	}
	return e, true
}

func (r *Registry) markDeleted(path string, e *entry) {
	r.mu.Lock()
	e.deleted = true
	r.mu.Unlock()
	if Verbose >= 1 {
		log.Printf("resource %q deleted", path)
	}
}

func cleanPath(path string) string {
	return strings.Trim(path, "/")
}

// discovery 以CoRE Link Format列出注册表中的资源
type discovery struct {
	r *Registry
}

func (d discovery) Path() string {
	return wellKnownCore
}

func (d discovery) Title() string {
	return ""
}

func (d discovery) Get() Result {
	links := make([]string, 0)
	for _, res := range d.r.Resources() {
		link := fmt.Sprintf("</%s>", cleanPath(res.Path()))
		if title := res.Title(); title != "" {
			link += fmt.Sprintf(";title=%q", title)
		}
		links = append(links, link)
	}
	return Result{
		Code:    Content,
		Format:  AppLinkFormat,
		Payload: []byte(strings.Join(links, ",")),
	}
}
