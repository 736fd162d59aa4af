//go:build !no_automation

package automation

import (
	"context"
	"encoding/hex"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"zigbee-ncp-host/internal/ezsp"
)

// registerNCPModule registers the `ncp` global table in a Lua state.
func registerNCPModule(L *lua.LState, vm *scriptVM, e *Engine) {
	fns := map[string]lua.LGFunction{
		"on":          func(L *lua.LState) int { return ncpOn(L, vm) },
		"after":       func(L *lua.LState) int { return ncpAfter(L, vm, e) },
		"permit_join": func(L *lua.LState) int { return ncpPermitJoin(L, vm, e) },
		"network":     func(L *lua.LState) int { return ncpNetwork(L, e) },
		"devices":     func(L *lua.LState) int { return ncpDevices(L, e) },
		"send":        func(L *lua.LState) int { return ncpSend(L, vm, e) },
		"log":         func(L *lua.LState) int { return ncpLog(L, vm, e) },
	}
	L.SetGlobal("ncp", L.SetFuncs(L.NewTable(), fns))
}

// ncp.on(event_type, [filter], fn). An event type of "*" matches every
// event.
func ncpOn(L *lua.LState, vm *scriptVM) int {
	h := luaEventHandler{eventType: L.CheckString(1)}
	if tbl, ok := L.Get(2).(*lua.LTable); ok {
		h.fn = L.CheckFunction(3)
		h.filter = make(map[string]string)
		tbl.ForEach(func(k, v lua.LValue) {
			h.filter[k.String()] = v.String()
		})
	} else {
		h.fn = L.CheckFunction(2)
	}

	vm.mu.Lock()
	if len(vm.handlers) >= maxHandlersPerScript {
		vm.mu.Unlock()
		L.RaiseError("too many handlers (max %d)", maxHandlersPerScript)
		return 0
	}
	vm.handlers = append(vm.handlers, h)
	vm.mu.Unlock()
	return 0
}

// ncp.after(seconds, fn) runs fn on the script's VM after a delay.
func ncpAfter(L *lua.LState, vm *scriptVM, e *Engine) int {
	delay := time.Duration(float64(L.CheckNumber(1)) * float64(time.Second))
	fn := L.CheckFunction(2)

	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-vm.ctx.Done():
			return
		}

		select {
		case vm.commands <- func(L *lua.LState) {
			if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}); err != nil {
				e.logger.Error("after callback error", "err", err)
			}
		}:
		default:
			e.logger.Warn("after: command queue full")
		}
	}()
	return 0
}

// pushResult pushes true, or nil and the error message.
func pushResult(L *lua.LState, err error) int {
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	return 1
}

// ncp.permit_join(seconds) returns true, or nil and an error message.
func ncpPermitJoin(L *lua.LState, vm *scriptVM, e *Engine) int {
	seconds := L.CheckInt(1)
	if seconds < 0 || seconds > 254 {
		L.ArgError(1, "seconds must be 0-254")
		return 0
	}
	ctx, cancel := context.WithTimeout(vm.ctx, commandTimeout)
	defer cancel()
	return pushResult(L, e.backend.PermitJoin(ctx, uint8(seconds)))
}

// ncp.network() returns the coordinator's network details.
func ncpNetwork(L *lua.LState, e *Engine) int {
	info := e.backend.NetworkInfo()
	t := L.NewTable()
	for k, v := range info {
		t.RawSetString(k, goToLua(L, v))
	}
	L.Push(t)
	return 1
}

// ncp.devices() returns an array of known devices.
func ncpDevices(L *lua.LState, e *Engine) int {
	t := L.NewTable()
	devices, err := e.backend.Store().ListDevices()
	if err != nil {
		e.logger.Error("list devices", "err", err)
		L.Push(t)
		return 1
	}
	for i, dev := range devices {
		d := L.NewTable()
		d.RawSetString("eui64", lua.LString(dev.EUI64))
		d.RawSetString("node_id", lua.LNumber(dev.NodeID))
		d.RawSetString("name", lua.LString(dev.FriendlyName))
		d.RawSetString("lqi", lua.LNumber(dev.LQI))
		d.RawSetString("rssi", lua.LNumber(dev.RSSI))
		d.RawSetString("last_seen", lua.LNumber(dev.LastSeen.Unix()))
		t.RawSetInt(i+1, d)
	}
	L.Push(t)
	return 1
}

// ncp.send(node_id, profile, cluster, src_ep, dst_ep, hex_payload) sends a
// unicast and returns its message tag, or nil and an error message.
func ncpSend(L *lua.LState, vm *scriptVM, e *Engine) int {
	checkRange := func(n int, max int) int {
		v := L.CheckInt(n)
		if v < 0 || v > max {
			L.ArgError(n, "out of range")
		}
		return v
	}
	nodeID := checkRange(1, 0xFFFF)
	aps := ezsp.ApsFrame{
		ProfileID:           uint16(checkRange(2, 0xFFFF)),
		ClusterID:           uint16(checkRange(3, 0xFFFF)),
		SourceEndpoint:      uint8(checkRange(4, 0xFF)),
		DestinationEndpoint: uint8(checkRange(5, 0xFF)),
	}
	payload, err := hex.DecodeString(strings.ReplaceAll(L.OptString(6, ""), " ", ""))
	if err != nil {
		L.ArgError(6, "payload must be hex")
		return 0
	}

	ctx, cancel := context.WithTimeout(vm.ctx, commandTimeout)
	defer cancel()
	tag, err := e.backend.SendUnicast(ctx, uint16(nodeID), aps, payload)
	if err != nil {
		return pushResult(L, err)
	}
	L.Push(lua.LNumber(tag))
	return 1
}

// ncp.log(msg)
func ncpLog(L *lua.LState, vm *scriptVM, e *Engine) int {
	msg := L.CheckString(1)
	if vm.logf != nil {
		vm.logf(msg)
		return 0
	}
	e.logger.Info("script log", "msg", msg)
	return 0
}
